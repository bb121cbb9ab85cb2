package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/pmnotify/internal/model"
)

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Every connection to ":memory:" is its own database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// notificationRow is the notifications table layout.
type notificationRow struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	Type      string    `db:"type"`
	Message   string    `db:"message"`
	Read      int       `db:"read"`
	RelatedTo string    `db:"related_to"`
	OnModel   string    `db:"on_model"`
	CreatedAt time.Time `db:"created_at"`
}

func (r notificationRow) toModel() model.Notification {
	return model.Notification{
		ID:        r.ID,
		Type:      model.ParseNotificationType(r.Type),
		RawType:   r.Type,
		Message:   r.Message,
		Read:      r.Read != 0,
		CreatedAt: r.CreatedAt,
		RelatedTo: r.RelatedTo,
		OnModel:   model.ParseEntityKind(r.OnModel),
	}
}

// CreateNotification inserts a notification for userID. A missing id or
// creation time is filled in.
func (s *SQLiteStore) CreateNotification(
	ctx context.Context,
	userID string,
	n model.Notification,
) (model.Notification, error) {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now()
	}
	n.CreatedAt = n.CreatedAt.UTC()

	rawType := n.RawType
	if n.Type != model.TypeUnknown {
		rawType = n.Type.String()
	}
	n.RawType = rawType

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, type, message, read, related_to, on_model, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, userID, rawType, n.Message, boolToInt(n.Read),
		n.RelatedTo, n.OnModel.String(), n.CreatedAt,
	)
	if err != nil {
		return model.Notification{}, fmt.Errorf("creating notification: %w", err)
	}

	return n, nil
}

// ListNotifications returns every notification for userID, newest first.
func (s *SQLiteStore) ListNotifications(
	ctx context.Context,
	userID string,
) ([]model.Notification, error) {
	var rows []notificationRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, user_id, type, message, read, related_to, on_model, created_at
		FROM notifications
		WHERE user_id = ?
		ORDER BY created_at DESC, id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying notifications: %w", err)
	}

	notifications := make([]model.Notification, 0, len(rows))
	for _, r := range rows {
		notifications = append(notifications, r.toModel())
	}
	return notifications, nil
}

// MarkNotificationRead marks a single notification as read. Marking an
// already-read notification succeeds.
func (s *SQLiteStore) MarkNotificationRead(
	ctx context.Context,
	userID, id string,
) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE notifications SET read = 1 WHERE id = ? AND user_id = ?", id, userID,
	)
	if err != nil {
		return fmt.Errorf("marking notification %s as read: %w", id, err)
	}
	return requireRow(res, "notification", id)
}

// MarkAllNotificationsRead marks every unread notification for userID as
// read and returns how many changed.
func (s *SQLiteStore) MarkAllNotificationsRead(
	ctx context.Context,
	userID string,
) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE notifications SET read = 1 WHERE user_id = ? AND read = 0", userID,
	)
	if err != nil {
		return 0, fmt.Errorf("marking all notifications as read: %w", err)
	}
	return res.RowsAffected()
}

// DeleteNotification removes a notification owned by userID.
func (s *SQLiteStore) DeleteNotification(
	ctx context.Context,
	userID, id string,
) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM notifications WHERE id = ? AND user_id = ?", id, userID,
	)
	if err != nil {
		return fmt.Errorf("deleting notification %s: %w", id, err)
	}
	return requireRow(res, "notification", id)
}

// CreateProject inserts a project.
func (s *SQLiteStore) CreateProject(ctx context.Context, p model.Project) (model.Project, error) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	_, err := s.db.NamedExecContext(ctx,
		"INSERT INTO projects (id, name) VALUES (:id, :name)", p,
	)
	if err != nil {
		return model.Project{}, fmt.Errorf("creating project: %w", err)
	}
	return p, nil
}

// CreateTask inserts a task.
func (s *SQLiteStore) CreateTask(ctx context.Context, t model.Task) (model.Task, error) {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	_, err := s.db.NamedExecContext(ctx,
		"INSERT INTO tasks (id, title, project_id) VALUES (:id, :title, :project_id)", t,
	)
	if err != nil {
		return model.Task{}, fmt.Errorf("creating task: %w", err)
	}
	return t, nil
}

// GetTask retrieves a task by id.
func (s *SQLiteStore) GetTask(ctx context.Context, id string) (*model.Task, error) {
	var t model.Task
	err := s.db.GetContext(ctx, &t,
		"SELECT id, title, project_id FROM tasks WHERE id = ?", id,
	)
	if err != nil {
		return nil, notFound(err, "task", id)
	}
	return &t, nil
}

// CreateComment inserts a comment.
func (s *SQLiteStore) CreateComment(ctx context.Context, c model.Comment) (model.Comment, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO comments (id, content, project_id, task_id)
		VALUES (:id, :content, :project_id, :task_id)`, c,
	)
	if err != nil {
		return model.Comment{}, fmt.Errorf("creating comment: %w", err)
	}
	return c, nil
}

// GetComment retrieves a comment by id.
func (s *SQLiteStore) GetComment(ctx context.Context, id string) (*model.Comment, error) {
	var c model.Comment
	err := s.db.GetContext(ctx, &c,
		"SELECT id, content, project_id, task_id FROM comments WHERE id = ?", id,
	)
	if err != nil {
		return nil, notFound(err, "comment", id)
	}
	return &c, nil
}

// CreateDocument inserts a document.
func (s *SQLiteStore) CreateDocument(ctx context.Context, d model.Document) (model.Document, error) {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	_, err := s.db.NamedExecContext(ctx,
		"INSERT INTO documents (id, name, project_id) VALUES (:id, :name, :project_id)", d,
	)
	if err != nil {
		return model.Document{}, fmt.Errorf("creating document: %w", err)
	}
	return d, nil
}

// GetDocument retrieves a document by id.
func (s *SQLiteStore) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	var d model.Document
	err := s.db.GetContext(ctx, &d,
		"SELECT id, name, project_id FROM documents WHERE id = ?", id,
	)
	if err != nil {
		return nil, notFound(err, "document", id)
	}
	return &d, nil
}

// notFound maps sql.ErrNoRows to ErrNotFound.
func notFound(err error, kind, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return fmt.Errorf("getting %s %s: %w", kind, id, err)
}

// requireRow returns ErrNotFound when an update touched nothing.
func requireRow(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}

// boolToInt converts a boolean to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
