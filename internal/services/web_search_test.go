package services

import (
	"testing"

	"notebridge/internal/models"
)

func TestWebCollectionParamsRecordsCreator(t *testing.T) {
	p := webCollectionParams("user_abc123def", "web_100", []string{"chunk"}, nil)
	if p.CollectionType != models.CollectionTemp {
		t.Errorf("collection type = %q, want temp", p.CollectionType)
	}
	if p.TTL != DefaultTempCollectionTTL {
		t.Errorf("ttl = %v, want %v", p.TTL, DefaultTempCollectionTTL)
	}
	if p.UserID == nil || *p.UserID != "user_abc123def" {
		t.Errorf("UserID = %v, want the requesting user", p.UserID)
	}
}

func TestWebCollectionParamsWithoutUser(t *testing.T) {
	p := webCollectionParams("", "web_100", []string{"chunk"}, nil)
	if p.UserID != nil {
		t.Errorf("UserID = %v, want nil when no requester is known", *p.UserID)
	}
}
