package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/oklog/ulid/v2"
	"github.com/pgvector/pgvector-go"

	"notebridge/internal/database"
	"notebridge/internal/models"
)

// DefaultTempCollectionTTL is how long a temp collection created by the
// web-search tool stays queryable.
const DefaultTempCollectionTTL = 1 * time.Hour

// VectorStore is the pgvector-backed RAG store. Collections are just a
// (collection_name, collection_type) grouping over one table. temp rows
// expire and are visible to anyone who knows the collection name;
// persistent rows belong to a user and may be widened via sharing.
type VectorStore struct {
	db       *database.DB
	embedder Embedder
}

func NewVectorStore(db *database.DB, embedder Embedder) *VectorStore {
	return &VectorStore{db: db, embedder: embedder}
}

// TempCollectionName builds the <prefix>_<unix_seconds> name used for
// expiring collections, e.g. web_1762386000.
func TempCollectionName(prefix string, now time.Time) string {
	return fmt.Sprintf("%s_%d", prefix, now.Unix())
}

// AddDocumentsParams describes one batch insert. Metadatas is optional;
// when present it must be the same length as Texts.
type AddDocumentsParams struct {
	CollectionName string
	CollectionType string // temp or persistent
	Texts          []string
	Metadatas      []map[string]interface{}
	UserID         *string
	TTL            time.Duration // temp only; DefaultTempCollectionTTL when zero
}

// AddDocuments embeds every text in one provider call and inserts the rows
// inside one transaction.
func (s *VectorStore) AddDocuments(ctx context.Context, p AddDocumentsParams) (int, error) {
	if p.CollectionName == "" {
		return 0, models.NewValidationError("collection_name is required")
	}
	if len(p.Texts) == 0 {
		return 0, models.NewValidationError("no texts to add")
	}
	if p.Metadatas != nil && len(p.Metadatas) != len(p.Texts) {
		return 0, models.NewValidationError("metadatas must match texts")
	}
	switch p.CollectionType {
	case models.CollectionTemp:
	case models.CollectionPersistent:
		if p.UserID == nil || *p.UserID == "" {
			return 0, models.NewValidationError("persistent collections require a user_id")
		}
	default:
		return 0, models.NewValidationError("collection_type must be temp or persistent")
	}

	vectors, err := s.embedder.EmbedDocuments(ctx, p.Texts)
	if err != nil {
		return 0, err
	}
	if len(vectors) != len(p.Texts) {
		return 0, fmt.Errorf("embedding provider returned %d vectors for %d texts", len(vectors), len(p.Texts))
	}

	var expiresAt *time.Time
	if p.CollectionType == models.CollectionTemp {
		ttl := p.TTL
		if ttl <= 0 {
			ttl = DefaultTempCollectionTTL
		}
		t := time.Now().Add(ttl)
		expiresAt = &t
	}

	err = s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		for i, text := range p.Texts {
			var metadata []byte
			if p.Metadatas != nil && p.Metadatas[i] != nil {
				metadata, _ = json.Marshal(p.Metadatas[i])
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO vector_documents
					(id, user_id, collection_name, collection_type, content, embedding, metadata, expires_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				ulid.Make().String(), p.UserID, p.CollectionName, p.CollectionType,
				text, pgvector.NewVector(vectors[i]), metadata, expiresAt); err != nil {
				return fmt.Errorf("failed to insert document %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	log.Printf("📚 [VECTORS] Added %d documents to %s (%s)", len(p.Texts), p.CollectionName, p.CollectionType)
	return len(p.Texts), nil
}

type searchRow struct {
	Content    string         `db:"content"`
	Metadata   sql.NullString `db:"metadata"`
	Similarity float64        `db:"similarity"`
}

// Search runs one cosine similarity query over a collection, honoring
// expiry and visibility: temp rows are open to anyone who knows the name,
// persistent rows require ownership or a sharing row.
func (s *VectorStore) Search(ctx context.Context, collectionName, query string, k int, requesterUserID *string) ([]models.VectorSearchHit, error) {
	if collectionName == "" || query == "" {
		return nil, models.NewValidationError("collection_name and query are required")
	}
	if k <= 0 || k > 50 {
		k = 5
	}

	queryVector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	requester := ""
	if requesterUserID != nil {
		requester = *requesterUserID
	}

	rows := []searchRow{}
	err = s.db.SelectContext(ctx, &rows, `
		SELECT content, metadata, 1 - (embedding <=> $1) AS similarity
		FROM vector_documents d
		WHERE d.collection_name = $2
		  AND (d.expires_at IS NULL OR d.expires_at > now())
		  AND (
			d.collection_type = 'temp'
			OR d.user_id = $3
			OR EXISTS (
				SELECT 1 FROM collection_sharing cs
				WHERE cs.owner_user_id = d.user_id
				  AND cs.collection_name = d.collection_name
				  AND cs.shared_with_user_id = $3
			)
		  )
		ORDER BY d.embedding <=> $1
		LIMIT $4`,
		pgvector.NewVector(queryVector), collectionName, requester, k)
	if err != nil {
		return nil, fmt.Errorf("failed to search collection %s: %w", collectionName, err)
	}

	hits := make([]models.VectorSearchHit, 0, len(rows))
	for _, row := range rows {
		hit := models.VectorSearchHit{Content: row.Content, Similarity: row.Similarity}
		if row.Metadata.Valid && row.Metadata.String != "" {
			_ = json.Unmarshal([]byte(row.Metadata.String), &hit.Metadata)
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// ListCollections returns the distinct visible collections, optionally
// filtered by type.
func (s *VectorStore) ListCollections(ctx context.Context, requesterUserID *string, collectionType string) ([]models.CollectionInfo, error) {
	requester := ""
	if requesterUserID != nil {
		requester = *requesterUserID
	}

	query := `
		SELECT d.collection_name, d.collection_type,
		       COUNT(*) AS document_count,
		       MAX(d.expires_at) AS expires_at
		FROM vector_documents d
		WHERE (d.expires_at IS NULL OR d.expires_at > now())
		  AND (
			d.collection_type = 'temp'
			OR d.user_id = $1
			OR EXISTS (
				SELECT 1 FROM collection_sharing cs
				WHERE cs.owner_user_id = d.user_id
				  AND cs.collection_name = d.collection_name
				  AND cs.shared_with_user_id = $1
			)
		  )`
	args := []interface{}{requester}
	if collectionType != "" {
		query += ` AND d.collection_type = $2`
		args = append(args, collectionType)
	}
	query += ` GROUP BY d.collection_name, d.collection_type ORDER BY d.collection_name`

	type listRow struct {
		CollectionName string     `db:"collection_name"`
		CollectionType string     `db:"collection_type"`
		DocumentCount  int        `db:"document_count"`
		ExpiresAt      *time.Time `db:"expires_at"`
	}
	rows := []listRow{}
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}

	infos := make([]models.CollectionInfo, 0, len(rows))
	for _, row := range rows {
		infos = append(infos, models.CollectionInfo{
			CollectionName: row.CollectionName,
			CollectionType: row.CollectionType,
			DocumentCount:  row.DocumentCount,
			ExpiresAt:      row.ExpiresAt,
		})
	}
	return infos, nil
}

// Stats describes one collection; NOT_FOUND when no live rows match or the
// caller cannot see it.
func (s *VectorStore) Stats(ctx context.Context, collectionName string, requesterUserID *string) (*models.CollectionStats, error) {
	requester := ""
	if requesterUserID != nil {
		requester = *requesterUserID
	}

	type statsRow struct {
		CollectionType string     `db:"collection_type"`
		DocumentCount  int        `db:"document_count"`
		CreatedAt      *time.Time `db:"created_at"`
		ExpiresAt      *time.Time `db:"expires_at"`
	}
	var row statsRow
	err := s.db.GetContext(ctx, &row, `
		SELECT d.collection_type,
		       COUNT(*) AS document_count,
		       MIN(d.created_at) AS created_at,
		       MAX(d.expires_at) AS expires_at
		FROM vector_documents d
		WHERE d.collection_name = $1
		  AND (d.expires_at IS NULL OR d.expires_at > now())
		  AND (d.collection_type = 'temp' OR d.user_id = $2
			OR EXISTS (
				SELECT 1 FROM collection_sharing cs
				WHERE cs.owner_user_id = d.user_id
				  AND cs.collection_name = d.collection_name
				  AND cs.shared_with_user_id = $2
			))
		GROUP BY d.collection_type`, collectionName, requester)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NewNotFoundError(fmt.Sprintf("collection %s not found", collectionName))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read collection stats: %w", err)
	}

	return &models.CollectionStats{
		CollectionName: collectionName,
		CollectionType: row.CollectionType,
		DocumentCount:  row.DocumentCount,
		CreatedAt:      row.CreatedAt,
		ExpiresAt:      row.ExpiresAt,
	}, nil
}

// DeleteCollection hard-deletes the matching rows. temp collections are
// deletable by anyone who knows the name; persistent ones only by their
// owner.
func (s *VectorStore) DeleteCollection(ctx context.Context, collectionName string, requesterUserID *string) (int64, error) {
	if collectionName == "" {
		return 0, models.NewValidationError("collection_name is required")
	}
	requester := ""
	if requesterUserID != nil {
		requester = *requesterUserID
	}

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM vector_documents
		WHERE collection_name = $1
		  AND (collection_type = 'temp' OR user_id = $2)`,
		collectionName, requester)
	if err != nil {
		return 0, fmt.Errorf("failed to delete collection %s: %w", collectionName, err)
	}
	deleted, _ := res.RowsAffected()
	if deleted > 0 {
		log.Printf("🗑️ [VECTORS] Deleted collection %s (%d rows)", collectionName, deleted)
	}
	return deleted, nil
}

// CleanupExpired removes every expired temp document. Run by the sweeper.
func (s *VectorStore) CleanupExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM vector_documents
		WHERE expires_at IS NOT NULL AND expires_at < now()`)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up expired documents: %w", err)
	}
	deleted, _ := res.RowsAffected()
	return deleted, nil
}

// ShareCollection widens a persistent collection to another user.
func (s *VectorStore) ShareCollection(ctx context.Context, ownerUserID, collectionName, sharedWithUserID string) error {
	if ownerUserID == sharedWithUserID {
		return models.NewValidationError("cannot share a collection with its owner")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO collection_sharing (owner_user_id, collection_name, shared_with_user_id)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING`,
		ownerUserID, collectionName, sharedWithUserID)
	if err != nil {
		if strings.Contains(err.Error(), "collection_sharing_check") {
			return models.NewValidationError("cannot share a collection with its owner")
		}
		return fmt.Errorf("failed to share collection: %w", err)
	}
	return nil
}
