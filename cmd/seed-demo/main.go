package main

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/ujianku/ujianku-backend/internal/config"
	"github.com/ujianku/ujianku-backend/internal/database"
	"github.com/ujianku/ujianku-backend/internal/logger"
	"github.com/ujianku/ujianku-backend/internal/model"
	"github.com/ujianku/ujianku-backend/internal/repository"
	"github.com/ujianku/ujianku-backend/internal/service"
)

// Seeds a demo guru, a roster of 20 students in kelas XII IPA 1, and one
// graded exam with code DEMO01. Safe to run repeatedly.
func main() {
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	guruRepo := repository.NewGuruRepository(pool)
	studentRepo := repository.NewStudentRepository(pool)
	examRepo := repository.NewExamRepository(pool)
	guruService := service.NewGuruService(guruRepo)

	fmt.Println("=== Seeding Demo Data ===")

	// ─── Guru ──────────────────────────────────────────────────────────
	guru, err := guruService.GetByEmail(ctx, "demo@ujianku.id")
	if err != nil {
		hash, err := bcrypt.GenerateFromPassword([]byte("demo-password"), cfg.BcryptCost)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to hash password")
		}
		guru, err = guruService.Register(ctx, "Guru Demo", "demo@ujianku.id", string(hash))
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create demo guru")
		}
		fmt.Printf("Created guru demo@ujianku.id (ID %d)\n", guru.ID)
	} else {
		fmt.Printf("Found existing guru demo@ujianku.id (ID %d)\n", guru.ID)
	}

	// ─── Roster ────────────────────────────────────────────────────────
	names := []string{
		"Budi Santoso", "Siti Aminah", "Andi Pratama", "Rina Wati", "Joko Susilo",
		"Ayu Lestari", "Dodi Kusuma", "Eka Putri", "Fahri Hamzah", "Gita Savitri",
		"Hendra Gunawan", "Ika Sari", "Jamal Mirdad", "Kiki Fatmala", "Lukman Hakim",
		"Maya Septiana", "Nanda Pratama", "Oki Setiana", "Putri Dian", "Qori Maharani",
	}

	imported := 0
	for i, name := range names {
		_, err := studentRepo.Upsert(ctx, &model.Student{
			NISN:   fmt.Sprintf("00%06d", i+1),
			Name:   name,
			Kelas:  "XII IPA 1",
			GuruID: guru.ID,
		})
		if err != nil {
			log.Fatal().Err(err).Str("name", name).Msg("Failed to upsert student")
		}
		imported++
	}
	fmt.Printf("Upserted %d students in XII IPA 1\n", imported)

	// ─── Exam ──────────────────────────────────────────────────────────
	exam, err := examRepo.GetByCode(ctx, "DEMO01")
	if err != nil {
		exam = &model.Exam{
			Code:            "DEMO01",
			Title:           "Ujian Demo Matematika",
			Kelas:           "XII IPA 1",
			GuruID:          guru.ID,
			TotalQuestions:  10,
			DurationMinutes: 30,
			ChoiceSet:       "ABCDE",
			AnswerKey:       model.AnswerKey{},
		}
		if err := examRepo.Create(ctx, exam); err != nil {
			log.Fatal().Err(err).Msg("Failed to create demo exam")
		}
		fmt.Printf("Created exam DEMO01 (%s)\n", exam.ID)
	} else {
		fmt.Printf("Found existing exam DEMO01 (%s)\n", exam.ID)
	}

	key := model.AnswerKey{}
	choices := []string{"A", "B", "C", "D", "E"}
	for q := 1; q <= exam.TotalQuestions; q++ {
		key[q] = choices[(q-1)%len(choices)]
	}
	if err := examRepo.SetAnswerKey(ctx, exam.ID, key); err != nil {
		log.Fatal().Err(err).Msg("Failed to set answer key")
	}
	fmt.Println("Answer key stored")

	fmt.Println("Done. Students log in with exam code DEMO01 and NISN 00000001..00000020")
}
