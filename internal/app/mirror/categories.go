package mirror

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/oriundostartup/libreta/internal/domain/models"
)

var studentsTable = table{"students", []string{"full_name", "rut", "birth_date", "grade", "created_at"}}

var classesTable = table{"classes", []string{"name", "grade", "school", "join_code", "teacher_uid", "created_at"}}

var membersTable = table{"class_members", []string{
	"class_id", "class_remote_id", "student_remote_id", "parent_uid", "student_name", "joined_at"}}

var messagesTable = table{"messages", []string{
	"sender_uid", "recipient_uid", "student_remote_id", "subject", "body", "read", "sent_at"}}

var eventsTable = table{"events", []string{"class_remote_id", "title", "description", "starts_at", "created_by"}}

var annotationsTable = table{"annotations", []string{
	"student_remote_id", "class_remote_id", "teacher_uid", "kind", "text", "created_at"}}

var attendanceTable = table{"attendance", []string{
	"student_remote_id", "class_remote_id", "date", "status", "recorded_by"}}

var justificationsTable = table{"justifications", []string{
	"student_remote_id", "class_remote_id", "parent_uid", "date", "reason", "status", "created_at"}}

var materialRequestsTable = table{"material_requests", []string{
	"class_remote_id", "teacher_uid", "title", "description", "due_date", "created_at"}}

// Tables lists every owner-scoped table, parents before children.
var Tables = []string{
	"students", "classes", "class_members", "messages", "events",
	"annotations", "attendance", "justifications", "material_requests",
}

// ReplaceStudents makes the owner's mirrored students exactly list.
func (s *Store) ReplaceStudents(ctx context.Context, ownerUID string, list []models.Student) error {
	rows := make([]row, 0, len(list))
	for _, st := range list {
		var birth any
		if st.BirthDate != nil {
			birth = millis(*st.BirthDate)
		}
		rows = append(rows, row{st.ID.Hex(), []any{st.FullName, st.RUT, birth, st.Grade, millis(st.CreatedAt)}})
	}
	return s.replace(ctx, studentsTable, ownerUID, rows)
}

// ReplaceClasses makes the owner's mirrored classes exactly list.
// Removing a class cascades to its mirrored members.
func (s *Store) ReplaceClasses(ctx context.Context, ownerUID string, list []models.Class) error {
	rows := make([]row, 0, len(list))
	for _, c := range list {
		rows = append(rows, row{c.ID.Hex(), []any{c.Name, c.Grade, c.School, c.JoinCode, c.TeacherUID, millis(c.CreatedAt)}})
	}
	return s.replace(ctx, classesTable, ownerUID, rows)
}

// ReplaceClassMembers makes the owner's mirrored memberships exactly list.
// Each membership's class must already be mirrored for the same owner.
func (s *Store) ReplaceClassMembers(ctx context.Context, ownerUID string, list []models.ClassMember) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		rows := make([]row, 0, len(list))
		for _, m := range list {
			classRemoteID := m.ClassID.Hex()
			var classID int64
			err := tx.QueryRowContext(ctx,
				`SELECT id FROM classes WHERE owner_uid = ? AND remote_id = ?`, ownerUID, classRemoteID,
			).Scan(&classID)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return fmt.Errorf("class_members %s: class %s is not mirrored", m.ID.Hex(), classRemoteID)
				}
				return err
			}
			rows = append(rows, row{m.ID.Hex(), []any{
				classID, classRemoteID, m.StudentID.Hex(), m.ParentUID, m.StudentName, millis(m.JoinedAt),
			}})
		}
		if err := upsertRows(ctx, tx, membersTable, ownerUID, rows); err != nil {
			return err
		}
		return prune(ctx, tx, membersTable, ownerUID, rows)
	})
}

// ReplaceMessages makes the owner's mirrored messages exactly list.
func (s *Store) ReplaceMessages(ctx context.Context, ownerUID string, list []models.Message) error {
	rows := make([]row, 0, len(list))
	for _, m := range list {
		student := ""
		if m.StudentID != nil {
			student = m.StudentID.Hex()
		}
		rows = append(rows, row{m.ID.Hex(), []any{
			m.SenderUID, m.RecipientUID, student, m.Subject, m.Body, boolInt(m.Read), millis(m.SentAt),
		}})
	}
	return s.replace(ctx, messagesTable, ownerUID, rows)
}

// ReplaceEvents makes the owner's mirrored events exactly list.
func (s *Store) ReplaceEvents(ctx context.Context, ownerUID string, list []models.Event) error {
	rows := make([]row, 0, len(list))
	for _, e := range list {
		rows = append(rows, row{e.ID.Hex(), []any{
			e.ClassID.Hex(), e.Title, e.Description, millis(e.StartsAt), e.CreatedBy,
		}})
	}
	return s.replace(ctx, eventsTable, ownerUID, rows)
}

// ReplaceAnnotations makes the owner's mirrored annotations exactly list.
func (s *Store) ReplaceAnnotations(ctx context.Context, ownerUID string, list []models.Annotation) error {
	rows := make([]row, 0, len(list))
	for _, a := range list {
		rows = append(rows, row{a.ID.Hex(), []any{
			a.StudentID.Hex(), a.ClassID.Hex(), a.TeacherUID, a.Kind, a.Text, millis(a.CreatedAt),
		}})
	}
	return s.replace(ctx, annotationsTable, ownerUID, rows)
}

// ReplaceAttendance makes the owner's mirrored attendance marks exactly list.
func (s *Store) ReplaceAttendance(ctx context.Context, ownerUID string, list []models.Attendance) error {
	rows := make([]row, 0, len(list))
	for _, a := range list {
		rows = append(rows, row{a.ID.Hex(), []any{
			a.StudentID.Hex(), a.ClassID.Hex(), millis(a.Date), a.Status, a.RecordedBy,
		}})
	}
	return s.replace(ctx, attendanceTable, ownerUID, rows)
}

// ReplaceJustifications makes the owner's mirrored justifications exactly list.
func (s *Store) ReplaceJustifications(ctx context.Context, ownerUID string, list []models.Justification) error {
	rows := make([]row, 0, len(list))
	for _, j := range list {
		rows = append(rows, row{j.ID.Hex(), []any{
			j.StudentID.Hex(), j.ClassID.Hex(), j.ParentUID, millis(j.Date), j.Reason, j.Status, millis(j.CreatedAt),
		}})
	}
	return s.replace(ctx, justificationsTable, ownerUID, rows)
}

// ReplaceMaterialRequests makes the owner's mirrored material requests exactly list.
func (s *Store) ReplaceMaterialRequests(ctx context.Context, ownerUID string, list []models.MaterialRequest) error {
	rows := make([]row, 0, len(list))
	for _, m := range list {
		rows = append(rows, row{m.ID.Hex(), []any{
			m.ClassID.Hex(), m.TeacherUID, m.Title, m.Description, millis(m.DueDate), millis(m.CreatedAt),
		}})
	}
	return s.replace(ctx, materialRequestsTable, ownerUID, rows)
}

// Student is a mirrored student.
type Student struct {
	ID        int64      `json:"id"`
	RemoteID  string     `json:"remote_id"`
	OwnerUID  string     `json:"owner_uid"`
	FullName  string     `json:"full_name"`
	RUT       string     `json:"rut,omitempty"`
	BirthDate *time.Time `json:"birth_date,omitempty"`
	Grade     string     `json:"grade,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Class is a mirrored class.
type Class struct {
	ID         int64     `json:"id"`
	RemoteID   string    `json:"remote_id"`
	OwnerUID   string    `json:"owner_uid"`
	Name       string    `json:"name"`
	Grade      string    `json:"grade,omitempty"`
	School     string    `json:"school,omitempty"`
	JoinCode   string    `json:"join_code"`
	TeacherUID string    `json:"teacher_uid"`
	CreatedAt  time.Time `json:"created_at"`
}

// ClassMember is a mirrored student-class link.
type ClassMember struct {
	ID              int64     `json:"id"`
	RemoteID        string    `json:"remote_id"`
	OwnerUID        string    `json:"owner_uid"`
	ClassID         int64     `json:"class_id"` // local id in classes
	ClassRemoteID   string    `json:"class_remote_id"`
	StudentRemoteID string    `json:"student_remote_id"`
	ParentUID       string    `json:"parent_uid"`
	StudentName     string    `json:"student_name"`
	JoinedAt        time.Time `json:"joined_at"`
}

const studentCols = `id, remote_id, owner_uid, full_name, rut, birth_date, grade, created_at`

func scanStudent(sc interface{ Scan(...any) error }) (Student, error) {
	var (
		st      Student
		birth   sql.NullInt64
		created int64
	)
	if err := sc.Scan(&st.ID, &st.RemoteID, &st.OwnerUID, &st.FullName, &st.RUT, &birth, &st.Grade, &created); err != nil {
		return Student{}, err
	}
	if birth.Valid {
		t := fromMillis(birth.Int64)
		st.BirthDate = &t
	}
	st.CreatedAt = fromMillis(created)
	return st, nil
}

// StudentByRemoteID reads one of the owner's mirrored students.
func (s *Store) StudentByRemoteID(ctx context.Context, ownerUID, remoteID string) (*Student, error) {
	r := s.db.QueryRowContext(ctx,
		`SELECT `+studentCols+` FROM students WHERE owner_uid = ? AND remote_id = ?`, ownerUID, remoteID)
	st, err := scanStudent(r)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &st, nil
}

// Students lists the owner's mirrored students by local id.
func (s *Store) Students(ctx context.Context, ownerUID string) ([]Student, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+studentCols+` FROM students WHERE owner_uid = ? ORDER BY id`, ownerUID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Student
	for rows.Next() {
		st, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

const classCols = `id, remote_id, owner_uid, name, grade, school, join_code, teacher_uid, created_at`

func scanClass(sc interface{ Scan(...any) error }) (Class, error) {
	var (
		c       Class
		created int64
	)
	if err := sc.Scan(&c.ID, &c.RemoteID, &c.OwnerUID, &c.Name, &c.Grade, &c.School, &c.JoinCode, &c.TeacherUID, &created); err != nil {
		return Class{}, err
	}
	c.CreatedAt = fromMillis(created)
	return c, nil
}

// ClassByRemoteID reads one of the owner's mirrored classes.
func (s *Store) ClassByRemoteID(ctx context.Context, ownerUID, remoteID string) (*Class, error) {
	r := s.db.QueryRowContext(ctx,
		`SELECT `+classCols+` FROM classes WHERE owner_uid = ? AND remote_id = ?`, ownerUID, remoteID)
	c, err := scanClass(r)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

const memberCols = `id, remote_id, owner_uid, class_id, class_remote_id, student_remote_id, parent_uid, student_name, joined_at`

func scanMember(sc interface{ Scan(...any) error }) (ClassMember, error) {
	var (
		m      ClassMember
		joined int64
	)
	if err := sc.Scan(&m.ID, &m.RemoteID, &m.OwnerUID, &m.ClassID, &m.ClassRemoteID,
		&m.StudentRemoteID, &m.ParentUID, &m.StudentName, &joined); err != nil {
		return ClassMember{}, err
	}
	m.JoinedAt = fromMillis(joined)
	return m, nil
}

// ClassMemberFor reads the owner's mirrored link between a class and a student.
func (s *Store) ClassMemberFor(ctx context.Context, ownerUID, classRemoteID, studentRemoteID string) (*ClassMember, error) {
	r := s.db.QueryRowContext(ctx,
		`SELECT `+memberCols+` FROM class_members
		 WHERE owner_uid = ? AND class_remote_id = ? AND student_remote_id = ?`,
		ownerUID, classRemoteID, studentRemoteID)
	m, err := scanMember(r)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

// Counts returns the number of mirrored rows per table for the owner.
func (s *Store) Counts(ctx context.Context, ownerUID string) (map[string]int, error) {
	out := make(map[string]int, len(Tables))
	for _, t := range Tables {
		var n int
		if err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM `+t+` WHERE owner_uid = ?`, ownerUID).Scan(&n); err != nil {
			return nil, err
		}
		out[t] = n
	}
	return out, nil
}
