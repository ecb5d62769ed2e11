package projects

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/GoldenRal/modSTR/pkg/enums"
	"github.com/GoldenRal/modSTR/pkg/logger"
	pkgredis "github.com/GoldenRal/modSTR/pkg/redis"
)

type fakeSnapshotClient struct {
	data   map[string]string
	setErr error
	sets   int
}

func newFakeSnapshotClient() *fakeSnapshotClient {
	return &fakeSnapshotClient{data: map[string]string{}}
}

func (f *fakeSnapshotClient) Get(_ context.Context, key string) (string, error) {
	value, ok := f.data[key]
	if !ok {
		return "", pkgredis.Nil
	}
	return value, nil
}

func (f *fakeSnapshotClient) Set(_ context.Context, key string, value any, _ time.Duration) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.data[key] = fmt.Sprint(value)
	f.sets++
	return nil
}

func (f *fakeSnapshotClient) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.data, key)
	}
	return nil
}

func (f *fakeSnapshotClient) SnapshotKey(userID string) string {
	return "modstr:snapshot:projects:" + userID
}

func newTestStore(t *testing.T, client *fakeSnapshotClient) *Store {
	t.Helper()
	store, err := NewStore(StoreParams{
		Redis:  client,
		Logger: logger.New(logger.Options{ServiceName: "projects-test", Output: io.Discard}),
	})
	if err != nil {
		t.Fatalf("NewStore returned error: %v", err)
	}
	return store
}

func TestCreateAndListProjects(t *testing.T) {
	ctx := context.Background()
	client := newFakeSnapshotClient()
	store := newTestStore(t, client)
	userID := uuid.New()

	first, err := store.CreateProject(ctx, userID, CreateProjectInput{Name: "Flat 402, Green Meadows"})
	if err != nil {
		t.Fatalf("CreateProject returned error: %v", err)
	}
	if first.Scenario != enums.ScenarioUnknown {
		t.Fatalf("new project must start with unknown scenario, got %s", first.Scenario)
	}
	if len(first.MissingDocuments) == 0 {
		t.Fatal("new project must start with the default required list")
	}

	second, err := store.CreateProject(ctx, userID, CreateProjectInput{Name: "Plot 17 Survey"})
	if err != nil {
		t.Fatalf("CreateProject returned error: %v", err)
	}

	list, err := store.ListProjects(ctx, userID)
	if err != nil {
		t.Fatalf("ListProjects returned error: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 projects, got %d", len(list))
	}
	if list[0].ID != second.ID {
		t.Fatal("expected newest project first")
	}

	if _, err := store.CreateProject(ctx, userID, CreateProjectInput{Name: "  "}); err == nil {
		t.Fatal("expected validation error for blank name")
	}
}

func TestSnapshotRoundTripStripsBytesAndTransientStatuses(t *testing.T) {
	ctx := context.Background()
	client := newFakeSnapshotClient()
	store := newTestStore(t, client)
	userID := uuid.New()

	project, err := store.CreateProject(ctx, userID, CreateProjectInput{Name: "Round Trip"})
	if err != nil {
		t.Fatalf("CreateProject returned error: %v", err)
	}

	doc := &Document{
		FileName:  "sale-deed.pdf",
		MIMEType:  "application/pdf",
		SizeBytes: 2048,
		Content:   []byte("raw pdf bytes"),
		Status:    enums.DocumentStatusExtracting,
	}
	added, err := store.AddDocument(ctx, userID, project.ID, doc)
	if err != nil {
		t.Fatalf("AddDocument returned error: %v", err)
	}

	stored := client.data[client.SnapshotKey(userID.String())]
	if strings.Contains(stored, "raw pdf bytes") {
		t.Fatal("snapshot must not contain file bytes")
	}

	// A fresh store simulates a restart.
	reloaded := newTestStore(t, client)
	got, err := reloaded.GetProject(ctx, userID, project.ID)
	if err != nil {
		t.Fatalf("GetProject after reload returned error: %v", err)
	}
	if len(got.Documents) != 1 {
		t.Fatalf("expected 1 document, got %d", len(got.Documents))
	}
	reloadedDoc := got.Documents[0]
	if reloadedDoc.ID != added.ID {
		t.Fatal("document id not preserved")
	}
	if reloadedDoc.Status != enums.DocumentStatusError {
		t.Fatalf("transient status must become error, got %s", reloadedDoc.Status)
	}
	if reloadedDoc.ErrorMessage != interruptedMessage {
		t.Fatalf("unexpected error message %q", reloadedDoc.ErrorMessage)
	}
	if len(reloadedDoc.Content) != 0 {
		t.Fatal("content must not survive the round trip")
	}
}

func TestSnapshotLegacyDocTypeMigration(t *testing.T) {
	ctx := context.Background()
	client := newFakeSnapshotClient()
	userID := uuid.New()
	projectID := uuid.New()
	docID := uuid.New()

	legacy := fmt.Sprintf(`[{
		"id": %q,
		"user_id": %q,
		"name": "Legacy",
		"scenario": "FLAT_IN_SOCIETY",
		"documents": [{
			"id": %q,
			"file_name": "share-cert.pdf",
			"status": "processed",
			"doc_types": ["Society Share Certificate"],
			"docType": "society share certificate"
		}]
	}]`, projectID, userID, docID)
	client.data[client.SnapshotKey(userID.String())] = legacy

	store := newTestStore(t, client)
	project, err := store.GetProject(ctx, userID, projectID)
	if err != nil {
		t.Fatalf("GetProject returned error: %v", err)
	}

	doc := project.Documents[0]
	if len(doc.DocTypes) != 1 {
		t.Fatalf("legacy label must not duplicate, got %v", doc.DocTypes)
	}
	if doc.DocTypes[0] != enums.DocumentTypeSocietyShareCertificate {
		t.Fatalf("unexpected label %v", doc.DocTypes[0])
	}
}

func TestSnapshotCorruptEntriesSkippedIndependently(t *testing.T) {
	ctx := context.Background()
	client := newFakeSnapshotClient()
	userID := uuid.New()
	goodID := uuid.New()
	goodDocID := uuid.New()

	raw := fmt.Sprintf(`[
		{"id": %q, "name": "Good", "scenario": "UNKNOWN",
		 "documents": [
			{"id": %q, "file_name": "ok.pdf", "status": "processed"},
			{"file_name": "no-id.pdf", "status": "processed"}
		 ]},
		{"name": "No ID"},
		{"id": "not-a-uuid", "name": "Bad ID"}
	]`, goodID, goodDocID)
	client.data[client.SnapshotKey(userID.String())] = raw

	store := newTestStore(t, client)
	list, err := store.ListProjects(ctx, userID)
	if err != nil {
		t.Fatalf("ListProjects returned error: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 salvaged project, got %d", len(list))
	}
	if len(list[0].Documents) != 1 {
		t.Fatalf("expected 1 salvaged document, got %d", len(list[0].Documents))
	}
	if list[0].Documents[0].ID != goodDocID {
		t.Fatal("wrong document salvaged")
	}
}

func TestSnapshotNonArrayYieldsEmptyCollection(t *testing.T) {
	ctx := context.Background()
	client := newFakeSnapshotClient()
	userID := uuid.New()
	client.data[client.SnapshotKey(userID.String())] = `{"not": "an array"}`

	store := newTestStore(t, client)
	list, err := store.ListProjects(ctx, userID)
	if err != nil {
		t.Fatalf("ListProjects returned error: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected empty collection, got %d", len(list))
	}
}

func TestSnapshotWriteFailureKeepsInMemoryState(t *testing.T) {
	ctx := context.Background()
	client := newFakeSnapshotClient()
	client.setErr = fmt.Errorf("redis down")
	store := newTestStore(t, client)
	userID := uuid.New()

	project, err := store.CreateProject(ctx, userID, CreateProjectInput{Name: "Unpersisted"})
	if err != nil {
		t.Fatalf("CreateProject returned error: %v", err)
	}

	got, err := store.GetProject(ctx, userID, project.ID)
	if err != nil {
		t.Fatalf("GetProject returned error: %v", err)
	}
	if got.Name != "Unpersisted" {
		t.Fatalf("unexpected project %+v", got)
	}
}

func TestAssignDocumentTypeIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, newFakeSnapshotClient())
	userID := uuid.New()

	project, err := store.CreateProject(ctx, userID, CreateProjectInput{Name: "Types"})
	if err != nil {
		t.Fatalf("CreateProject returned error: %v", err)
	}
	doc, err := store.AddDocument(ctx, userID, project.ID, &Document{FileName: "deed.pdf", Status: enums.DocumentStatusProcessed})
	if err != nil {
		t.Fatalf("AddDocument returned error: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := store.AssignDocumentType(ctx, userID, project.ID, doc.ID, enums.DocumentTypeSaleDeed); err != nil {
			t.Fatalf("AssignDocumentType returned error: %v", err)
		}
	}

	got, err := store.GetDocument(ctx, userID, project.ID, doc.ID)
	if err != nil {
		t.Fatalf("GetDocument returned error: %v", err)
	}
	if len(got.DocTypes) != 1 || got.DocTypes[0] != enums.DocumentTypeSaleDeed {
		t.Fatalf("unexpected labels %v", got.DocTypes)
	}

	if err := store.AssignDocumentType(ctx, userID, project.ID, doc.ID, enums.DocumentType("Bogus")); err == nil {
		t.Fatal("expected validation error for unknown type")
	}
}

func TestDeleteDocumentAndExistenceCheck(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, newFakeSnapshotClient())
	userID := uuid.New()

	project, err := store.CreateProject(ctx, userID, CreateProjectInput{Name: "Deletion"})
	if err != nil {
		t.Fatalf("CreateProject returned error: %v", err)
	}
	doc, err := store.AddDocument(ctx, userID, project.ID, &Document{FileName: "tax.pdf"})
	if err != nil {
		t.Fatalf("AddDocument returned error: %v", err)
	}

	if !store.DocumentExists(ctx, userID, project.ID, doc.ID) {
		t.Fatal("document should exist before deletion")
	}
	if err := store.DeleteDocument(ctx, userID, project.ID, doc.ID); err != nil {
		t.Fatalf("DeleteDocument returned error: %v", err)
	}
	if store.DocumentExists(ctx, userID, project.ID, doc.ID) {
		t.Fatal("document should not exist after deletion")
	}
}

func TestEncodeSnapshotIsValidJSONArray(t *testing.T) {
	project := &Project{
		ID:     uuid.New(),
		UserID: uuid.New(),
		Name:   "Encode",
		Documents: []*Document{{
			ID:       uuid.New(),
			FileName: "will.pdf",
			Status:   enums.DocumentStatusProcessed,
			DocTypes: []enums.DocumentType{enums.DocumentTypeWill},
		}},
	}

	data, err := encodeSnapshot([]*Project{project})
	if err != nil {
		t.Fatalf("encodeSnapshot returned error: %v", err)
	}
	var arr []map[string]any
	if err := json.Unmarshal(data, &arr); err != nil {
		t.Fatalf("snapshot is not a JSON array: %v", err)
	}
	if len(arr) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(arr))
	}
}
