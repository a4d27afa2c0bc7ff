package ingest

// ChunkText splits text into chunks of at most chunkSize characters, each
// overlapping the previous by overlap characters, per §4.M. Grounded on
// original_source/src/membria/kb_ingest.py's chunk_text.
func ChunkText(text string, chunkSize, overlap int) []string {
	runes := []rune(text)
	if chunkSize <= 0 {
		return []string{text}
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
		if overlap < 0 {
			overlap = 0
		}
	}

	var chunks []string
	start := 0
	textLen := len(runes)
	for start < textLen {
		end := start + chunkSize
		if end > textLen {
			end = textLen
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == textLen {
			break
		}
		start = end - overlap
		if start < 0 {
			start = 0
		}
	}
	if len(chunks) == 0 {
		chunks = []string{""}
	}
	return chunks
}
