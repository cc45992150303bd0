package qdrant

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/adamstz/organize-mail-sub001/internal/core/domain"
)

func TestSearchMapsPayloadToDocuments(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/collections/mail/points/search" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"result":[
			{"score":0.91,"payload":{"message_id":"m1","subject":"a"}},
			{"score":0.74,"payload":{"message_id":"m2","subject":"b"}}
		]}`))
	}))
	defer server.Close()

	client := New(server.URL, "mail")
	docs, err := client.Search(context.Background(), []float32{0.1, 0.2}, 10, 0.35, domain.SearchFilter{})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(docs))
	}
	if docs[0].ID != "m1" || docs[0].Rank != 1 || docs[0].Score != 0.91 {
		t.Fatalf("unexpected first document %+v", docs[0])
	}
	if docs[1].Rank != 2 || docs[1].Source != domain.SourceVector {
		t.Fatalf("unexpected second document %+v", docs[1])
	}
	if captured["score_threshold"] != 0.35 {
		t.Fatalf("expected score_threshold forwarded, got %v", captured["score_threshold"])
	}
}

func TestSearchLabelFilter(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"result":[]}`))
	}))
	defer server.Close()

	client := New(server.URL, "mail")
	if _, err := client.Search(context.Background(), []float32{0.1}, 10, 0, domain.SearchFilter{Label: "promotions"}); err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	filter, ok := captured["filter"].(map[string]any)
	if !ok {
		t.Fatalf("expected filter in request, got %v", captured)
	}
	raw, _ := json.Marshal(filter)
	if string(raw) != `{"must":[{"key":"labels","match":{"value":"promotions"}}]}` {
		t.Fatalf("unexpected filter %s", raw)
	}
	if _, hasThreshold := captured["score_threshold"]; hasThreshold {
		t.Fatalf("zero threshold must be omitted: %v", captured)
	}
}

func TestIndexMessageEnsuresCollectionOnce(t *testing.T) {
	var ensureCalls, upsertCalls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/collections/mail":
			ensureCalls++
			w.WriteHeader(http.StatusOK)
		case "/collections/mail/points":
			upsertCalls++
			w.WriteHeader(http.StatusOK)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := New(server.URL, "mail")
	msg := domain.MailMessage{ID: "m1", Subject: "hello", Labels: []string{"inbox"}}
	for i := 0; i < 3; i++ {
		if err := client.IndexMessage(context.Background(), msg, []float32{0.1, 0.2}); err != nil {
			t.Fatalf("IndexMessage() error = %v", err)
		}
	}
	if ensureCalls != 1 {
		t.Fatalf("expected one ensure-collection call, got %d", ensureCalls)
	}
	if upsertCalls != 3 {
		t.Fatalf("expected 3 upserts, got %d", upsertCalls)
	}
}

func TestIndexMessageTreatsConflictAsEnsured(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/collections/mail" {
			http.Error(w, "already exists", http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New(server.URL, "mail")
	if err := client.IndexMessage(context.Background(), domain.MailMessage{ID: "m1"}, []float32{0.1}); err != nil {
		t.Fatalf("IndexMessage() error = %v", err)
	}
}

func TestPointIDDeterministic(t *testing.T) {
	if pointID("m1") != pointID("m1") {
		t.Fatalf("point id must be stable for a message id")
	}
	if pointID("m1") == pointID("m2") {
		t.Fatalf("distinct messages must map to distinct points")
	}
}

func TestVectorByMessageIDNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":{"points":[]}}`))
	}))
	defer server.Close()

	client := New(server.URL, "mail")
	_, err := client.VectorByMessageID(context.Background(), "ghost")
	if !errors.Is(err, domain.ErrMessageNotFound) {
		t.Fatalf("expected ErrMessageNotFound, got %v", err)
	}
}

func TestVectorByMessageIDRoundTrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/collections/mail/points/scroll" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"result":{"points":[{"vector":[0.5,0.25]}]}}`))
	}))
	defer server.Close()

	client := New(server.URL, "mail")
	vector, err := client.VectorByMessageID(context.Background(), "m1")
	if err != nil {
		t.Fatalf("VectorByMessageID() error = %v", err)
	}
	if len(vector) != 2 || vector[0] != 0.5 {
		t.Fatalf("unexpected vector %v", vector)
	}
}
