package storage

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/cjhyy/interview-QA-help/internal/domain"
	"github.com/cjhyy/interview-QA-help/internal/ports"
)

const (
	tasksCollection = "tasks"
	qaCollection    = "qa_records"
)

var (
	_ ports.TaskRepository = (*FirestoreStore)(nil)
	_ ports.QARepository   = (*FirestoreStore)(nil)
)

// FirestoreStore keeps tasks in a collection keyed by url hash so document
// creation doubles as the uniqueness check.
type FirestoreStore struct {
	client *firestore.Client
}

type taskDoc struct {
	ID           string    `firestore:"id"`
	URL          string    `firestore:"url"`
	URLHash      string    `firestore:"urlHash"`
	Title        string    `firestore:"title"`
	Status       string    `firestore:"status"`
	QACount      int       `firestore:"qaCount"`
	Keywords     []string  `firestore:"keywords"`
	Language     string    `firestore:"language"`
	Category     string    `firestore:"category"`
	QualityScore float64   `firestore:"qualityScore"`
	ErrorMessage string    `firestore:"errorMessage"`
	ExtractMS    int64     `firestore:"extractMs"`
	SynthesizeMS int64     `firestore:"synthesizeMs"`
	TotalMS      int64     `firestore:"totalMs"`
	ProviderUsed string    `firestore:"providerUsed"`
	AccessCount  int64     `firestore:"accessCount"`
	CreatedAt    time.Time `firestore:"createdAt"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

type qaDoc struct {
	TaskID       string    `firestore:"taskId"`
	URLHash      string    `firestore:"urlHash"`
	Order        int       `firestore:"order"`
	Question     string    `firestore:"question"`
	Answer       string    `firestore:"answer"`
	Type         string    `firestore:"type"`
	Difficulty   string    `firestore:"difficulty"`
	Tags         []string  `firestore:"tags"`
	QualityScore float64   `firestore:"qualityScore"`
	CreatedAt    time.Time `firestore:"createdAt"`
}

// OpenFirestore connects to the project's default database.
func OpenFirestore(ctx context.Context, projectID string) (*FirestoreStore, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}
	return &FirestoreStore{client: client}, nil
}

// Close releases the client.
func (s *FirestoreStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *FirestoreStore) tasks() *firestore.CollectionRef {
	return s.client.Collection(tasksCollection)
}

func (s *FirestoreStore) CreateIfAbsent(ctx context.Context, task domain.Task) (domain.Task, bool, error) {
	ref := s.tasks().Doc(task.URLHash)
	_, err := ref.Create(ctx, toTaskDoc(task))
	if err == nil {
		return task, true, nil
	}
	if status.Code(err) != codes.AlreadyExists {
		return domain.Task{}, false, &domain.PersistenceError{Op: "create task", Err: err}
	}

	snap, err := ref.Get(ctx)
	if err != nil {
		return domain.Task{}, false, &domain.PersistenceError{Op: "create task", Err: err}
	}
	existing, err := fromTaskSnapshot(snap)
	if err != nil {
		return domain.Task{}, false, err
	}
	return existing, false, nil
}

func (s *FirestoreStore) FindByHash(ctx context.Context, urlHash string) (*domain.Task, error) {
	snap, err := s.tasks().Doc(urlHash).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load task: %w", err)
	}
	task, err := fromTaskSnapshot(snap)
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (s *FirestoreStore) FindByID(ctx context.Context, id string) (*domain.Task, error) {
	ref, err := s.refByID(ctx, id)
	if err != nil || ref == nil {
		return nil, err
	}
	return s.FindByHash(ctx, ref.ID)
}

// refByID resolves the document holding id, or nil when none does.
func (s *FirestoreStore) refByID(ctx context.Context, id string) (*firestore.DocumentRef, error) {
	snaps, err := s.tasks().Where("id", "==", id).Limit(1).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("lookup task %s: %w", id, err)
	}
	if len(snaps) == 0 {
		return nil, nil
	}
	return snaps[0].Ref, nil
}

func (s *FirestoreStore) Claim(ctx context.Context, id string, cond ports.ClaimCondition) (bool, error) {
	ref, err := s.refByID(ctx, id)
	if err != nil {
		return false, err
	}
	if ref == nil {
		return false, nil
	}

	claimed := false
	err = s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		claimed = false
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var doc taskDoc
		if err := snap.DataTo(&doc); err != nil {
			return err
		}
		if !slices.Contains(cond.From, domain.TaskStatus(doc.Status)) {
			return nil
		}
		if !cond.UpdatedBefore.IsZero() && !doc.UpdatedAt.Before(cond.UpdatedBefore) {
			return nil
		}
		claimed = true
		return tx.Update(ref, []firestore.Update{
			{Path: "status", Value: string(domain.StatusProcessing)},
			{Path: "errorMessage", Value: ""},
			{Path: "updatedAt", Value: time.Now().UTC()},
		})
	})
	if err != nil {
		return false, &domain.PersistenceError{Op: "claim task", Err: err}
	}
	return claimed, nil
}

func (s *FirestoreStore) Save(ctx context.Context, task domain.Task) error {
	doc := toTaskDoc(task)
	updates := []firestore.Update{
		{Path: "url", Value: doc.URL},
		{Path: "title", Value: doc.Title},
		{Path: "status", Value: doc.Status},
		{Path: "qaCount", Value: doc.QACount},
		{Path: "keywords", Value: doc.Keywords},
		{Path: "language", Value: doc.Language},
		{Path: "category", Value: doc.Category},
		{Path: "qualityScore", Value: doc.QualityScore},
		{Path: "errorMessage", Value: doc.ErrorMessage},
		{Path: "extractMs", Value: doc.ExtractMS},
		{Path: "synthesizeMs", Value: doc.SynthesizeMS},
		{Path: "totalMs", Value: doc.TotalMS},
		{Path: "providerUsed", Value: doc.ProviderUsed},
		{Path: "updatedAt", Value: doc.UpdatedAt},
	}
	_, err := s.tasks().Doc(task.URLHash).Update(ctx, updates)
	if status.Code(err) == codes.NotFound {
		return &domain.PersistenceError{Op: "save task", Err: domain.ErrTaskNotFound}
	}
	if err != nil {
		return &domain.PersistenceError{Op: "save task", Err: err}
	}
	return nil
}

func (s *FirestoreStore) IncrementAccess(ctx context.Context, id string) error {
	ref, err := s.refByID(ctx, id)
	if err != nil {
		return err
	}
	if ref == nil {
		return domain.ErrTaskNotFound
	}
	if _, err := ref.Update(ctx, []firestore.Update{{Path: "accessCount", Value: firestore.Increment(1)}}); err != nil {
		return &domain.PersistenceError{Op: "increment access", Err: err}
	}
	return nil
}

func (s *FirestoreStore) List(ctx context.Context, q ports.ListQuery) ([]domain.Task, int, error) {
	completed := s.tasks().Where("status", "==", string(domain.StatusCompleted))

	all, err := completed.Select().Documents(ctx).GetAll()
	if err != nil {
		return nil, 0, fmt.Errorf("count tasks: %w", err)
	}

	query := completed.OrderBy("createdAt", firestore.Desc)
	if q.Sort == ports.SortPopular {
		query = completed.OrderBy("accessCount", firestore.Desc).OrderBy("createdAt", firestore.Desc)
	}
	if q.Offset > 0 {
		query = query.Offset(q.Offset)
	}
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}

	tasks, err := collectTasks(query.Documents(ctx))
	if err != nil {
		return nil, 0, err
	}
	return tasks, len(all), nil
}

// Search filters titles client side; Firestore has no substring operator.
func (s *FirestoreStore) Search(ctx context.Context, query string, limit int) ([]domain.Task, error) {
	needle := strings.ToLower(strings.TrimSpace(query))
	candidates, err := collectTasks(s.tasks().
		Where("status", "==", string(domain.StatusCompleted)).
		OrderBy("accessCount", firestore.Desc).
		Documents(ctx))
	if err != nil {
		return nil, err
	}

	var matched []domain.Task
	for _, task := range candidates {
		if !strings.Contains(strings.ToLower(task.Title), needle) {
			continue
		}
		matched = append(matched, task)
		if limit > 0 && len(matched) == limit {
			break
		}
	}
	return matched, nil
}

func (s *FirestoreStore) Stale(ctx context.Context, cutoff time.Time, limit int) ([]domain.Task, error) {
	query := s.tasks().
		Where("status", "in", []string{string(domain.StatusPending), string(domain.StatusProcessing)}).
		Where("updatedAt", "<", cutoff.UTC()).
		OrderBy("updatedAt", firestore.Asc)
	if limit > 0 {
		query = query.Limit(limit)
	}
	return collectTasks(query.Documents(ctx))
}

func (s *FirestoreStore) Delete(ctx context.Context, id string) error {
	ref, err := s.refByID(ctx, id)
	if err != nil {
		return err
	}
	if ref == nil {
		return domain.ErrTaskNotFound
	}
	if err := s.DeleteByTaskID(ctx, id); err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil {
		return &domain.PersistenceError{Op: "delete task", Err: err}
	}
	return nil
}

func (s *FirestoreStore) BulkCreate(ctx context.Context, records []domain.QARecord) error {
	if len(records) == 0 {
		return nil
	}

	bw := s.client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(records))
	for _, r := range records {
		ref := s.client.Collection(qaCollection).Doc(fmt.Sprintf("%s-%04d", r.TaskID, r.Order))
		job, err := bw.Create(ref, qaDoc{
			TaskID:       r.TaskID,
			URLHash:      r.URLHash,
			Order:        r.Order,
			Question:     r.Question,
			Answer:       r.Answer,
			Type:         string(r.Type),
			Difficulty:   string(r.Difficulty),
			Tags:         r.Tags,
			QualityScore: r.QualityScore,
			CreatedAt:    r.CreatedAt.UTC(),
		})
		if err != nil {
			bw.End()
			return &domain.PersistenceError{Op: "create qa records", Err: err}
		}
		jobs = append(jobs, job)
	}
	bw.End()

	var errs []error
	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return &domain.PersistenceError{Op: "create qa records", Err: errors.Join(errs...)}
	}
	return nil
}

func (s *FirestoreStore) FindByTaskID(ctx context.Context, taskID string) ([]domain.QARecord, error) {
	snaps, err := s.client.Collection(qaCollection).
		Where("taskId", "==", taskID).
		OrderBy("order", firestore.Asc).
		Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("query qa records: %w", err)
	}

	records := make([]domain.QARecord, 0, len(snaps))
	for _, snap := range snaps {
		var doc qaDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode qa record %s: %w", snap.Ref.ID, err)
		}
		records = append(records, domain.QARecord{
			TaskID:       doc.TaskID,
			URLHash:      doc.URLHash,
			Order:        doc.Order,
			Question:     doc.Question,
			Answer:       doc.Answer,
			Type:         domain.QAType(doc.Type),
			Difficulty:   domain.Difficulty(doc.Difficulty),
			Tags:         doc.Tags,
			QualityScore: doc.QualityScore,
			CreatedAt:    doc.CreatedAt,
		})
	}
	return records, nil
}

func (s *FirestoreStore) DeleteByTaskID(ctx context.Context, taskID string) error {
	snaps, err := s.client.Collection(qaCollection).Where("taskId", "==", taskID).Documents(ctx).GetAll()
	if err != nil {
		return &domain.PersistenceError{Op: "delete qa records", Err: err}
	}
	if len(snaps) == 0 {
		return nil
	}

	bw := s.client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(snaps))
	for _, snap := range snaps {
		job, err := bw.Delete(snap.Ref)
		if err != nil {
			bw.End()
			return &domain.PersistenceError{Op: "delete qa records", Err: err}
		}
		jobs = append(jobs, job)
	}
	bw.End()

	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			return &domain.PersistenceError{Op: "delete qa records", Err: err}
		}
	}
	return nil
}

func collectTasks(iter *firestore.DocumentIterator) ([]domain.Task, error) {
	snaps, err := iter.GetAll()
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	tasks := make([]domain.Task, 0, len(snaps))
	for _, snap := range snaps {
		task, err := fromTaskSnapshot(snap)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func toTaskDoc(t domain.Task) taskDoc {
	keywords := t.Keywords
	if keywords == nil {
		keywords = []string{}
	}
	return taskDoc{
		ID:           t.ID,
		URL:          t.URL,
		URLHash:      t.URLHash,
		Title:        t.Title,
		Status:       string(t.Status),
		QACount:      t.QACount,
		Keywords:     keywords,
		Language:     t.Language,
		Category:     string(t.Category),
		QualityScore: t.QualityScore,
		ErrorMessage: t.ErrorMessage,
		ExtractMS:    t.ProcessingTime.Extract,
		SynthesizeMS: t.ProcessingTime.Synthesize,
		TotalMS:      t.ProcessingTime.Total,
		ProviderUsed: t.ProviderUsed,
		AccessCount:  t.AccessCount,
		CreatedAt:    t.CreatedAt.UTC(),
		UpdatedAt:    t.UpdatedAt.UTC(),
	}
}

func fromTaskSnapshot(snap *firestore.DocumentSnapshot) (domain.Task, error) {
	var doc taskDoc
	if err := snap.DataTo(&doc); err != nil {
		return domain.Task{}, fmt.Errorf("decode task %s: %w", snap.Ref.ID, err)
	}
	return domain.Task{
		ID:           doc.ID,
		URL:          doc.URL,
		URLHash:      doc.URLHash,
		Title:        doc.Title,
		Status:       domain.TaskStatus(doc.Status),
		QACount:      doc.QACount,
		Keywords:     doc.Keywords,
		Language:     doc.Language,
		Category:     domain.ParseCategory(doc.Category),
		QualityScore: doc.QualityScore,
		ErrorMessage: doc.ErrorMessage,
		ProcessingTime: domain.ProcessingTime{
			Extract:    doc.ExtractMS,
			Synthesize: doc.SynthesizeMS,
			Total:      doc.TotalMS,
		},
		ProviderUsed: doc.ProviderUsed,
		AccessCount:  doc.AccessCount,
		CreatedAt:    doc.CreatedAt,
		UpdatedAt:    doc.UpdatedAt,
	}, nil
}
