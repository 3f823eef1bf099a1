package seed

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/mind-engage/examportal/internal/auth/middleware"
	"github.com/mind-engage/examportal/internal/exam"
)

const sample = `
users:
  - username: ravi
    password: ravi-pw
    role: student
  - username: meera
    passwordHash: "$2a$10$abcdefghijklmnopqrstuuJ3Qy7u0vK5m2Y8vZr6lV2C7lXo9n7mW"
    role: teacher
tests:
  - id: jee-mock-1
    name: JEE Main Mock 1
    duration: 180
    sections:
      - id: phy
        name: Physics
        questions:
          - {id: q1, type: mcq, correct: B, positive: 4, negative: 1, image: tests/jee-mock-1/q1.png}
      - id: mat
        name: Maths
        questions:
          - {id: q2, type: numerical, value: 2.5, tolerance: "tol=0.01", positive: 4, negative: 1}
`

func TestApply(t *testing.T) {
	f, err := Parse([]byte(sample))
	require.NoError(t, err)

	ctx := context.Background()
	svc := exam.NewService(exam.NewInMemoryStore(nil))
	users := auth.StaticUsers{}
	require.NoError(t, Apply(ctx, f, svc, users))

	ravi, err := users.FindUser(ctx, "ravi")
	require.NoError(t, err)
	assert.Equal(t, "student", ravi.Role)
	assert.True(t, auth.CheckPassword(ravi.PasswordHash, "ravi-pw"))
	assert.Equal(t, "$2a$10$abcdefghijklmnopqrstuuJ3Qy7u0vK5m2Y8vZr6lV2C7lXo9n7mW", users["meera"].PasswordHash)

	tt, err := svc.GetTest(ctx, "jee-mock-1")
	require.NoError(t, err)
	assert.Equal(t, 180, tt.DurationMin)
	require.Len(t, tt.Sections, 2)
	q1 := tt.Sections[0].Questions[0]
	assert.Equal(t, "B", q1.Question.CorrectOption)
	assert.Equal(t, "tests/jee-mock-1/q1.png", q1.Question.ImageKey)
	q2 := tt.Sections[1].Questions[0]
	require.NotNil(t, q2.Question.CorrectNumerical)
	assert.Equal(t, 2.5, *q2.Question.CorrectNumerical)
	assert.Equal(t, "tol=0.01", q2.Question.Tolerance)
	assert.Equal(t, 4.0, q2.PositiveMarks)
}

func TestApplyRejectsBadEntries(t *testing.T) {
	ctx := context.Background()
	svc := exam.NewService(exam.NewInMemoryStore(nil))

	err := Apply(ctx, File{Users: []User{{Username: "x", Role: "student"}}}, svc, auth.StaticUsers{})
	assert.ErrorContains(t, err, "no password")

	err = Apply(ctx, File{Tests: []Test{{ID: "t", Name: "empty", Duration: 10}}}, svc, auth.StaticUsers{})
	assert.ErrorIs(t, err, exam.ErrInvalidTest)

	_, err = Parse([]byte("users: [unterminated"))
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(p, []byte(sample), 0o644))
	f, err := LoadFile(p)
	require.NoError(t, err)
	assert.Len(t, f.Users, 2)
	assert.Len(t, f.Tests, 1)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
