package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5"

	"github.com/invigio/invigio-backend/internal/config"
	"github.com/invigio/invigio-backend/internal/database"
	"github.com/invigio/invigio-backend/internal/logger"
	"github.com/invigio/invigio-backend/internal/model"
	"github.com/invigio/invigio-backend/internal/repository"
	"github.com/invigio/invigio-backend/internal/service"
)

const (
	demoTeacherID = 1
	questionCount = 5
)

var demoStudentIDs = []int{101, 102, 103, 104, 105}

func main() {
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	quizRepo := repository.NewQuizRepository(pool)
	attemptRepo := repository.NewAttemptRepository(pool)

	fmt.Println("=== Seeding Demo Quiz ===")

	quiz := &model.Quiz{
		TeacherID:         demoTeacherID,
		Title:             "Demo Quiz",
		DurationMinutes:   30,
		EnforceFullscreen: true,
	}
	if err := quizRepo.Create(ctx, quiz); err != nil {
		log.Fatal().Err(err).Msg("Failed to create quiz")
	}
	fmt.Printf("Quiz: %s\n", quiz.ID)

	for i := 1; i <= questionCount; i++ {
		q := &model.Question{QuizID: quiz.ID, Position: i}
		if err := quizRepo.CreateQuestion(ctx, q); err != nil {
			log.Fatal().Err(err).Int("position", i).Msg("Failed to create question")
		}
	}
	fmt.Printf("Questions: %d\n", questionCount)

	for _, studentID := range demoStudentIDs {
		attempt := &model.Attempt{QuizID: quiz.ID, StudentID: studentID}
		err := attemptRepo.CreateAssigned(ctx, attempt)
		if errors.Is(err, pgx.ErrNoRows) {
			fmt.Printf("Attempt for student %d already exists, skipped\n", studentID)
			continue
		}
		if err != nil {
			log.Fatal().Err(err).Int("student_id", studentID).Msg("Failed to assign attempt")
		}
		fmt.Printf("Attempt: %s (student %d)\n", attempt.ID, studentID)
	}

	fmt.Println("\n=== Dev Tokens (24h) ===")
	fmt.Printf("teacher %d: %s\n", demoTeacherID, mintToken(cfg, service.TokenTypeTeacher, demoTeacherID))
	for _, studentID := range demoStudentIDs {
		fmt.Printf("student %d: %s\n", studentID, mintToken(cfg, service.TokenTypeStudent, studentID))
	}
}

// mintToken signs a short-lived dev JWT. Production tokens come from the
// identity service; these exist only to exercise a local stack.
func mintToken(cfg *config.Config, tokenType service.TokenType, userID int) string {
	claims := service.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		TokenType: tokenType,
		UserID:    userID,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(cfg.JWTSecret))
	if err != nil {
		panic(err)
	}
	return signed
}
