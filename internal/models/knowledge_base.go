package models

import "time"

// CollectionStats summarizes one collection for GET /documents/stats.
type CollectionStats struct {
	CollectionName string     `json:"collection_name"`
	CollectionType string     `json:"collection_type"`
	DocumentCount  int        `json:"document_count"`
	CreatedAt      *time.Time `json:"created_at,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
}

type UploadResponse struct {
	Success    bool            `json:"success"`
	FileName   string          `json:"file_name,omitempty"`
	ChunkCount int             `json:"chunk_count"`
	Stats      CollectionStats `json:"stats"`
}

// VectorSearchHit is one similarity-search result. Similarity is
// 1 - cosine distance, so higher is closer.
type VectorSearchHit struct {
	Content    string                 `json:"content"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	Similarity float64                `json:"similarity"`
}

// CollectionInfo is one row of a collection listing.
type CollectionInfo struct {
	CollectionName string     `json:"collection_name"`
	CollectionType string     `json:"collection_type"`
	DocumentCount  int        `json:"document_count"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
}
