package store

import (
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/membria/membria-core/internal/apperr"
	"github.com/membria/membria-core/internal/domain"
	"github.com/membria/membria-core/internal/logging"
)

// PutDocument stores one ingested chunk (§3, §4.M). Embedding is
// marshaled to a little-endian float32 blob in the documents table's
// embedding column; no vector index is built over it.
func (gs *GraphStore) PutDocument(d *domain.Document) error {
	timer := logging.StartTimer(logging.CategoryGraphStore, "PutDocument")
	defer timer.Stop()

	blob := encodeEmbedding(d.Embedding)
	_, err := gs.db.Exec(
		`INSERT INTO documents (
			id, tenant_id, team_id, project_id, file_path, content, doc_type,
			embedding, chunk_index, chunk_total, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content=excluded.content, doc_type=excluded.doc_type, embedding=excluded.embedding,
			chunk_index=excluded.chunk_index, chunk_total=excluded.chunk_total, updated_at=excluded.updated_at`,
		d.ID, d.Namespace.TenantID, d.Namespace.TeamID, d.Namespace.ProjectID, d.FilePath,
		d.Content, d.DocType, blob, d.ChunkIndex, d.ChunkTotal, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return apperr.Wrap(apperr.PermanentBackend, err, "put document %s", d.ID)
	}
	return nil
}

// GetDocument loads one ingested chunk by id.
func (gs *GraphStore) GetDocument(id string) (*domain.Document, error) {
	row := gs.db.QueryRow(
		`SELECT id, tenant_id, team_id, project_id, file_path, content, doc_type,
			embedding, chunk_index, chunk_total, created_at, updated_at
		 FROM documents WHERE id = ?`, id)

	var d domain.Document
	var blob []byte
	err := row.Scan(
		&d.ID, &d.Namespace.TenantID, &d.Namespace.TeamID, &d.Namespace.ProjectID, &d.FilePath,
		&d.Content, &d.DocType, &blob, &d.ChunkIndex, &d.ChunkTotal, &d.CreatedAt, &d.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "document %s not found", id)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.PermanentBackend, err, "get document %s", id)
	}
	d.Embedding = decodeEmbedding(blob)
	return &d, nil
}

// ListDocumentsByPath returns every chunk ingested from filePath, ordered
// by chunk index, used to re-chunk a file on re-ingestion (§4.M).
func (gs *GraphStore) ListDocumentsByPath(filePath string) ([]*domain.Document, error) {
	rows, err := gs.db.Query(
		`SELECT id, tenant_id, team_id, project_id, file_path, content, doc_type,
			embedding, chunk_index, chunk_total, created_at, updated_at
		 FROM documents WHERE file_path = ? ORDER BY chunk_index ASC`, filePath)
	if err != nil {
		return nil, apperr.Wrap(apperr.PermanentBackend, err, "list documents for %s", filePath)
	}
	defer rows.Close()

	var out []*domain.Document
	for rows.Next() {
		var d domain.Document
		var blob []byte
		if err := rows.Scan(
			&d.ID, &d.Namespace.TenantID, &d.Namespace.TeamID, &d.Namespace.ProjectID, &d.FilePath,
			&d.Content, &d.DocType, &blob, &d.ChunkIndex, &d.ChunkTotal, &d.CreatedAt, &d.UpdatedAt,
		); err != nil {
			logging.Get(logging.CategoryGraphStore).Warn("document row scan failed: %v", err)
			continue
		}
		d.Embedding = decodeEmbedding(blob)
		out = append(out, &d)
	}
	return out, rows.Err()
}

// DeleteDocumentsByPath removes every chunk for filePath, used before
// re-ingesting a changed file (§4.M).
func (gs *GraphStore) DeleteDocumentsByPath(filePath string) error {
	_, err := gs.db.Exec(`DELETE FROM documents WHERE file_path = ?`, filePath)
	if err != nil {
		return apperr.Wrap(apperr.PermanentBackend, err, "delete documents for %s", filePath)
	}
	return nil
}

// PutDocShot stores an immutable snapshot of document ids cited by a
// decision via the USES_DOCSHOT edge (§3).
func (gs *GraphStore) PutDocShot(d *domain.DocShot) error {
	documentIDs, err := json.Marshal(d.DocumentIDs)
	if err != nil {
		return apperr.Wrap(apperr.InvalidArgument, err, "marshal document_ids")
	}
	_, err = gs.db.Exec(
		`INSERT INTO docshots (id, tenant_id, team_id, project_id, document_ids, created_at) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		d.ID, d.Namespace.TenantID, d.Namespace.TeamID, d.Namespace.ProjectID, string(documentIDs), d.CreatedAt,
	)
	if err != nil {
		return apperr.Wrap(apperr.PermanentBackend, err, "put docshot %s", d.ID)
	}
	return nil
}

// GetDocShot loads an immutable docshot by id.
func (gs *GraphStore) GetDocShot(id string) (*domain.DocShot, error) {
	row := gs.db.QueryRow(
		`SELECT id, tenant_id, team_id, project_id, document_ids, created_at FROM docshots WHERE id = ?`, id)
	var d domain.DocShot
	var documentIDs string
	err := row.Scan(&d.ID, &d.Namespace.TenantID, &d.Namespace.TeamID, &d.Namespace.ProjectID, &documentIDs, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "docshot %s not found", id)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.PermanentBackend, err, "get docshot %s", id)
	}
	if err := json.Unmarshal([]byte(documentIDs), &d.DocumentIDs); err != nil {
		return nil, err
	}
	return &d, nil
}
