// Package seed loads tests and users from a YAML file at startup.
package seed

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	auth "github.com/mind-engage/examportal/internal/auth/middleware"
	"github.com/mind-engage/examportal/internal/exam"
)

type File struct {
	Users []User `yaml:"users"`
	Tests []Test `yaml:"tests"`
}

type User struct {
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`     // plain, hashed on load
	PasswordHash string `yaml:"passwordHash"` // bcrypt, wins over password
	Role         string `yaml:"role"`
}

type Test struct {
	ID       string    `yaml:"id"`
	Name     string    `yaml:"name"`
	Duration int       `yaml:"duration"` // minutes
	Sections []Section `yaml:"sections"`
}

type Section struct {
	ID        string     `yaml:"id"`
	Name      string     `yaml:"name"`
	Questions []Question `yaml:"questions"`
}

type Question struct {
	ID        string   `yaml:"id"`
	Type      string   `yaml:"type"`
	Image     string   `yaml:"image"`
	Correct   string   `yaml:"correct"`   // mcq option
	Value     *float64 `yaml:"value"`     // numerical key
	Tolerance string   `yaml:"tolerance"` // e.g. "tol=0.01"
	Positive  float64  `yaml:"positive"`
	Negative  float64  `yaml:"negative"`
}

type TestSink interface {
	PutTest(ctx context.Context, t exam.Test) error
}

type UserSink interface {
	UpsertUser(ctx context.Context, u auth.User) error
}

func Parse(b []byte) (File, error) {
	var f File
	if err := yaml.Unmarshal(b, &f); err != nil {
		return File{}, fmt.Errorf("seed: %w", err)
	}
	return f, nil
}

func LoadFile(path string) (File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return File{}, err
	}
	return Parse(b)
}

// Apply upserts every user and test in f.
func Apply(ctx context.Context, f File, tests TestSink, users UserSink) error {
	for _, u := range f.Users {
		if u.Username == "" || u.Role == "" {
			return fmt.Errorf("seed: user %q needs username and role", u.Username)
		}
		hash := u.PasswordHash
		if hash == "" {
			if u.Password == "" {
				return fmt.Errorf("seed: user %q has no password", u.Username)
			}
			var err error
			if hash, err = auth.HashPassword(u.Password); err != nil {
				return err
			}
		}
		if err := users.UpsertUser(ctx, auth.User{Username: u.Username, PasswordHash: hash, Role: u.Role}); err != nil {
			return fmt.Errorf("seed: user %s: %w", u.Username, err)
		}
	}
	for _, t := range f.Tests {
		if err := tests.PutTest(ctx, t.toExam()); err != nil {
			return fmt.Errorf("seed: test %s: %w", t.ID, err)
		}
	}
	return nil
}

func (t Test) toExam() exam.Test {
	out := exam.Test{ID: t.ID, Name: t.Name, DurationMin: t.Duration}
	for _, s := range t.Sections {
		sec := exam.Section{ID: s.ID, Name: s.Name}
		for _, q := range s.Questions {
			sec.Questions = append(sec.Questions, exam.QuestionEntry{
				Question: exam.Question{
					ID:               q.ID,
					Type:             q.Type,
					ImageKey:         q.Image,
					CorrectOption:    q.Correct,
					CorrectNumerical: q.Value,
					Tolerance:        q.Tolerance,
				},
				PositiveMarks: q.Positive,
				NegativeMarks: q.Negative,
			})
		}
		out.Sections = append(out.Sections, sec)
	}
	return out
}
