package projects

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/GoldenRal/modSTR/pkg/enums"
	pkgerrors "github.com/GoldenRal/modSTR/pkg/errors"
	"github.com/GoldenRal/modSTR/pkg/logger"
	pkgredis "github.com/GoldenRal/modSTR/pkg/redis"
)

type snapshotClient interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	SnapshotKey(userID string) string
}

// Store holds every user's project collection in memory, mirrored to one
// Redis snapshot key per user after each mutation. The in-memory copy is
// authoritative; the snapshot only brings state back after a restart.
type Store struct {
	mu     sync.Mutex
	byUser map[uuid.UUID][]*Project
	loaded map[uuid.UUID]bool

	redis  snapshotClient
	logger *logger.Logger
	now    func() time.Time

	snapshotWarned bool
}

// StoreParams configures the project store.
type StoreParams struct {
	Redis  snapshotClient
	Logger *logger.Logger
	Now    func() time.Time
}

// NewStore builds the project store.
func NewStore(p StoreParams) (*Store, error) {
	if p.Redis == nil {
		return nil, fmt.Errorf("redis client required")
	}
	if p.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if p.Now == nil {
		p.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Store{
		byUser: make(map[uuid.UUID][]*Project),
		loaded: make(map[uuid.UUID]bool),
		redis:  p.Redis,
		logger: p.Logger,
		now:    p.Now,
	}, nil
}

// CreateProjectInput holds the fields a client supplies for a new project.
type CreateProjectInput struct {
	Name                 string
	Address              string
	Client               string
	SearchPeriod         string
	AdvocateInstructions string
}

// CreateProject registers a new project for the user.
func (s *Store) CreateProject(ctx context.Context, userID uuid.UUID, input CreateProjectInput) (*Project, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user identity missing")
	}
	if strings.TrimSpace(input.Name) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "project name is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded(ctx, userID)

	now := s.now()
	project := &Project{
		ID:                   uuid.New(),
		UserID:               userID,
		Name:                 strings.TrimSpace(input.Name),
		Address:              strings.TrimSpace(input.Address),
		Client:               strings.TrimSpace(input.Client),
		SearchPeriod:         strings.TrimSpace(input.SearchPeriod),
		Scenario:             enums.ScenarioUnknown,
		MissingDocuments:     enums.ScenarioUnknown.RequiredDocuments(),
		AdvocateInstructions: strings.TrimSpace(input.AdvocateInstructions),
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	s.byUser[userID] = append(s.byUser[userID], project)
	s.persistLocked(ctx, userID)
	return cloneProject(project), nil
}

// ListProjects returns the user's projects, newest first.
func (s *Store) ListProjects(ctx context.Context, userID uuid.UUID) ([]*Project, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user identity missing")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded(ctx, userID)

	list := s.byUser[userID]
	out := make([]*Project, 0, len(list))
	for i := len(list) - 1; i >= 0; i-- {
		out = append(out, cloneProject(list[i]))
	}
	return out, nil
}

// GetProject returns one project owned by the user.
func (s *Store) GetProject(ctx context.Context, userID, projectID uuid.UUID) (*Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded(ctx, userID)

	project := s.findLocked(userID, projectID)
	if project == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "project not found")
	}
	return cloneProject(project), nil
}

// DeleteProject removes the project. Queued pipeline jobs for its documents
// are dropped by the worker's existence check.
func (s *Store) DeleteProject(ctx context.Context, userID, projectID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded(ctx, userID)

	list := s.byUser[userID]
	for i, project := range list {
		if project.ID == projectID {
			s.byUser[userID] = append(list[:i], list[i+1:]...)
			s.persistLocked(ctx, userID)
			return nil
		}
	}
	return pkgerrors.New(pkgerrors.CodeNotFound, "project not found")
}

// AddDocument attaches a new document to the project in uploading state.
func (s *Store) AddDocument(ctx context.Context, userID, projectID uuid.UUID, doc *Document) (*Document, error) {
	if doc == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "document required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded(ctx, userID)

	project := s.findLocked(userID, projectID)
	if project == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "project not found")
	}

	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	if doc.Status == "" {
		doc.Status = enums.DocumentStatusUploading
	}
	doc.UploadedAt = s.now()
	project.Documents = append(project.Documents, doc)
	project.UpdatedAt = s.now()
	s.persistLocked(ctx, userID)
	return cloneDocument(doc), nil
}

// DeleteDocument removes a document from the project.
func (s *Store) DeleteDocument(ctx context.Context, userID, projectID, docID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded(ctx, userID)

	project := s.findLocked(userID, projectID)
	if project == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "project not found")
	}
	for i, doc := range project.Documents {
		if doc.ID == docID {
			project.Documents = append(project.Documents[:i], project.Documents[i+1:]...)
			project.UpdatedAt = s.now()
			s.persistLocked(ctx, userID)
			return nil
		}
	}
	return pkgerrors.New(pkgerrors.CodeNotFound, "document not found")
}

// DocumentExists reports whether the document is still present. The pipeline
// worker calls this before starting a dequeued job.
func (s *Store) DocumentExists(ctx context.Context, userID, projectID, docID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded(ctx, userID)

	project := s.findLocked(userID, projectID)
	if project == nil {
		return false
	}
	return project.FindDocument(docID) != nil
}

// GetDocument returns a copy of the document without its transient bytes.
func (s *Store) GetDocument(ctx context.Context, userID, projectID, docID uuid.UUID) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded(ctx, userID)

	project := s.findLocked(userID, projectID)
	if project == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "project not found")
	}
	doc := project.FindDocument(docID)
	if doc == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "document not found")
	}
	return cloneDocument(doc), nil
}

// DocumentContent returns the raw file bytes held for an in-flight document.
// The bytes live only in memory; they are dropped once the document reaches
// a terminal status.
func (s *Store) DocumentContent(ctx context.Context, userID, projectID, docID uuid.UUID) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded(ctx, userID)

	project := s.findLocked(userID, projectID)
	if project == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "project not found")
	}
	doc := project.FindDocument(docID)
	if doc == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "document not found")
	}
	return doc.Content, nil
}

// MutateDocument applies fn to the document under the store lock and
// persists the collection afterwards.
func (s *Store) MutateDocument(ctx context.Context, userID, projectID, docID uuid.UUID, fn func(*Document)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded(ctx, userID)

	project := s.findLocked(userID, projectID)
	if project == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "project not found")
	}
	doc := project.FindDocument(docID)
	if doc == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "document not found")
	}
	fn(doc)
	project.UpdatedAt = s.now()
	s.persistLocked(ctx, userID)
	return nil
}

// MutateProject applies fn to the project under the store lock and persists
// the collection afterwards.
func (s *Store) MutateProject(ctx context.Context, userID, projectID uuid.UUID, fn func(*Project)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded(ctx, userID)

	project := s.findLocked(userID, projectID)
	if project == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "project not found")
	}
	fn(project)
	project.UpdatedAt = s.now()
	s.persistLocked(ctx, userID)
	return nil
}

// AssignDocumentType appends the label to the document's set idempotently.
// Completeness is left to the next deriver trigger.
func (s *Store) AssignDocumentType(ctx context.Context, userID, projectID, docID uuid.UUID, docType enums.DocumentType) error {
	if !docType.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown document type")
	}
	return s.MutateDocument(ctx, userID, projectID, docID, func(doc *Document) {
		if !doc.HasDocType(docType) {
			doc.DocTypes = append(doc.DocTypes, docType)
		}
	})
}

// SetAdvocateInstructions replaces the project's standing instructions.
func (s *Store) SetAdvocateInstructions(ctx context.Context, userID, projectID uuid.UUID, instructions string) error {
	return s.MutateProject(ctx, userID, projectID, func(project *Project) {
		project.AdvocateInstructions = strings.TrimSpace(instructions)
	})
}

// SetReport replaces the project's report.
func (s *Store) SetReport(ctx context.Context, userID, projectID uuid.UUID, report *Report) error {
	return s.MutateProject(ctx, userID, projectID, func(project *Project) {
		project.Report = report
	})
}

func (s *Store) findLocked(userID, projectID uuid.UUID) *Project {
	for _, project := range s.byUser[userID] {
		if project.ID == projectID {
			return project
		}
	}
	return nil
}

// ensureLoaded pulls the user's snapshot out of Redis on first touch. A
// missing or corrupt snapshot yields an empty collection; salvageable
// entries are kept and the rest logged.
func (s *Store) ensureLoaded(ctx context.Context, userID uuid.UUID) {
	if s.loaded[userID] {
		return
	}
	s.loaded[userID] = true

	raw, err := s.redis.Get(ctx, s.redis.SnapshotKey(userID.String()))
	if err != nil {
		if !errors.Is(err, pkgredis.Nil) {
			s.logger.Error(s.logger.WithUserID(ctx, userID.String()), "load project snapshot", err)
		}
		return
	}

	loaded, err := decodeSnapshot([]byte(raw))
	if err != nil {
		s.logger.Error(s.logger.WithUserID(ctx, userID.String()), "decode project snapshot", err)
	}
	for _, project := range loaded {
		project.UserID = userID
	}
	s.byUser[userID] = loaded
}

// persistLocked writes the user's snapshot. Failures are logged and, the
// first time only, escalated to a warning; the in-memory mutation stands.
func (s *Store) persistLocked(ctx context.Context, userID uuid.UUID) {
	data, err := encodeSnapshot(s.byUser[userID])
	if err != nil {
		s.logger.Error(s.logger.WithUserID(ctx, userID.String()), "encode project snapshot", err)
		return
	}

	key := s.redis.SnapshotKey(userID.String())
	if len(s.byUser[userID]) == 0 {
		if err := s.redis.Del(ctx, key); err != nil {
			s.logger.Error(s.logger.WithUserID(ctx, userID.String()), "delete project snapshot", err)
		}
		return
	}

	if err := s.redis.Set(ctx, key, string(data), 0); err != nil {
		if !s.snapshotWarned {
			s.snapshotWarned = true
			s.logger.Warn(ctx, "project snapshots are failing; state will not survive a restart")
		}
		s.logger.Error(s.logger.WithUserID(ctx, userID.String()), "write project snapshot", err)
	}
}

func cloneProject(project *Project) *Project {
	copied := *project
	copied.MissingDocuments = append([]enums.DocumentType(nil), project.MissingDocuments...)
	copied.Documents = make([]*Document, len(project.Documents))
	for i, doc := range project.Documents {
		copied.Documents[i] = cloneDocument(doc)
	}
	if project.Report != nil {
		report := *project.Report
		report.RiskFlags = append([]string(nil), project.Report.RiskFlags...)
		copied.Report = &report
	}
	return &copied
}

func cloneDocument(doc *Document) *Document {
	copied := *doc
	copied.DocTypes = append([]enums.DocumentType(nil), doc.DocTypes...)
	copied.Content = nil
	return &copied
}
