package main

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"qrattend/internal/auth"
	"qrattend/internal/config"
	"qrattend/internal/store"
)

// Seeds a development database with one faculty member, two students and
// an enrolled class starting now.
func main() {
	cfg := config.Load()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	ctx := context.Background()

	facultyID := mustUser(ctx, db, "faculty@example.edu", "faculty-pass", auth.RoleFaculty, "Prof. Demo")
	student1 := mustUser(ctx, db, "student1@example.edu", "student-pass", auth.RoleStudent, "Student One")
	student2 := mustUser(ctx, db, "student2@example.edu", "student-pass", auth.RoleStudent, "Student Two")

	courseID := uuid.NewString()
	if _, err := db.Client.ExecContext(ctx, `
		INSERT INTO courses (id, name) VALUES ($1, $2)
	`, courseID, "Distributed Systems"); err != nil {
		log.Fatalf("seed course: %v", err)
	}

	classID := uuid.NewString()
	if _, err := db.Client.ExecContext(ctx, `
		INSERT INTO classes (id, course_id, faculty_id, starts_at)
		VALUES ($1, $2, $3, $4)
	`, classID, courseID, facultyID, time.Now()); err != nil {
		log.Fatalf("seed class: %v", err)
	}

	for _, studentID := range []string{student1, student2} {
		if _, err := db.Client.ExecContext(ctx, `
			INSERT INTO enrollments (student_id, course_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, studentID, courseID); err != nil {
			log.Fatalf("seed enrollment: %v", err)
		}
	}

	log.Printf("seeded course=%s class=%s faculty=%s", courseID, classID, facultyID)
}

func mustUser(ctx context.Context, db *store.DB, email, password, role, name string) string {
	hash, err := auth.HashPassword(password)
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}
	id := uuid.NewString()
	_, err = db.Client.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, role, name)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (email) DO UPDATE SET password_hash = EXCLUDED.password_hash
	`, id, email, hash, role, name)
	if err != nil {
		log.Fatalf("seed user %s: %v", email, err)
	}
	var actualID string
	if err := db.Client.QueryRowContext(ctx, `SELECT id FROM users WHERE email = $1`, email).Scan(&actualID); err != nil {
		log.Fatalf("lookup user %s: %v", email, err)
	}
	return actualID
}
