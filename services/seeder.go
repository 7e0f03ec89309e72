package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rhetorio/backend/models"
	"github.com/rhetorio/backend/repository"
	"golang.org/x/crypto/bcrypt"
)

// DatabaseSeeder handles database seeding operations
type DatabaseSeeder struct {
	repo *repository.GORMRepository
}

// NewDatabaseSeeder creates a new database seeder
func NewDatabaseSeeder(repo *repository.GORMRepository) *DatabaseSeeder {
	return &DatabaseSeeder{repo: repo}
}

// SeedDatabase seeds the database with initial data (idempotent)
func (s *DatabaseSeeder) SeedDatabase() error {
	ctx := context.Background()

	if s.isSeedingComplete(ctx) {
		slog.Info("Database seeding already completed, skipping")
		return nil
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	users := []models.User{
		{
			Email:    "test@example.com",
			Password: string(hashedPassword),
			FullName: "Test User",
			Role:     "user",
		},
		{
			Email:    "demo@example.com",
			Password: string(hashedPassword),
			FullName: "Demo User",
			Role:     "user",
		},
	}

	for _, user := range users {
		if err := s.seedUser(ctx, user); err != nil {
			slog.Error("Failed to seed user", "email", user.Email, "error", err)
		}
	}

	topics := []models.Topic{
		{
			Title:       "Social media does more harm than good",
			Description: "Platforms like Instagram, TikTok and X have reshaped how billions communicate. This debate weighs their effect on mental health, discourse and connection.",
			Category:    "Technology",
			Difficulty:  "easy",
			ProPoints:   "Linked to rising anxiety and depression in teens\nAmplifies misinformation faster than corrections\nEngagement algorithms reward outrage over nuance",
			ConPoints:   "Connects isolated people with communities\nGives marginalized voices a global platform\nEnables rapid organization of aid and activism",
			IsActive:    true,
		},
		{
			Title:       "Remote work should be the default for office jobs",
			Description: "Since 2020, distributed work has gone mainstream. Should companies treat the office as the exception rather than the rule?",
			Category:    "Society",
			Difficulty:  "easy",
			ProPoints:   "Eliminates commutes and widens talent pools\nStudies show equal or better productivity\nReduces office real estate and emissions",
			ConPoints:   "Weakens mentorship and spontaneous collaboration\nBlurs work-life boundaries\nDisadvantages workers without good home setups",
			IsActive:    true,
		},
		{
			Title:       "Universal basic income is a viable economic policy",
			Description: "A recurring unconditional cash payment to all citizens has been piloted in several countries. Is it a realistic foundation for modern welfare?",
			Category:    "Economics",
			Difficulty:  "medium",
			ProPoints:   "Pilot programs show improved wellbeing without reduced employment\nSimplifies fragmented welfare bureaucracy\nCushions automation-driven job displacement",
			ConPoints:   "Cost estimates run into double-digit percentages of GDP\nMay fuel inflation without increasing output\nUntargeted payments help those who do not need them",
			IsActive:    true,
		},
		{
			Title:       "Artificial intelligence should be regulated like medicine",
			Description: "Frontier AI systems now influence hiring, lending, healthcare and warfare. Should their deployment require pre-approval comparable to pharmaceutical trials?",
			Category:    "Technology",
			Difficulty:  "medium",
			ProPoints:   "High-stakes failures are irreversible once deployed at scale\nIndependent review catches harms vendors are blind to\nPrecedent exists in aviation and drug safety regimes",
			ConPoints:   "Approval pipelines would freeze out smaller labs\nRegulators lack the expertise to evaluate frontier systems\nJurisdiction shopping undermines any single regime",
			IsActive:    true,
		},
		{
			Title:       "Nuclear energy is essential to fighting climate change",
			Description: "Nuclear power provides steady low-carbon electricity but carries waste, cost and proliferation concerns. Can decarbonization succeed without it?",
			Category:    "Environment",
			Difficulty:  "hard",
			ProPoints:   "Highest capacity factor of any low-carbon source\nGrid stability that intermittent renewables cannot provide\nDeaths per terawatt-hour far below fossil fuels",
			ConPoints:   "New plants take a decade and routinely overrun budgets\nLong-lived waste lacks a permanent disposal solution\nSame capital buys faster emission cuts in renewables",
			IsActive:    true,
		},
		{
			Title:       "Democracies should ban anonymous speech online",
			Description: "Anonymity protects dissidents and whistleblowers but also shields harassment and coordinated disinformation. Where should democracies draw the line?",
			Category:    "Politics",
			Difficulty:  "hard",
			ProPoints:   "Accountability deters harassment and astroturfing\nForeign influence operations depend on fake personas\nVerified identity already works for finance and voting",
			ConPoints:   "Dissidents and whistleblowers need anonymity to survive\nIdentity databases become surveillance honeypots\nChilling effects fall hardest on vulnerable groups",
			IsActive:    true,
		},
	}

	for _, topic := range topics {
		if err := s.seedTopic(ctx, topic); err != nil {
			slog.Error("Failed to seed topic", "title", topic.Title, "error", err)
		}
	}

	slog.Info("Database seeding completed successfully")
	return nil
}

// isSeedingComplete checks if seeding has already been completed
func (s *DatabaseSeeder) isSeedingComplete(ctx context.Context) bool {
	topics, err := s.repo.GetTopics(ctx, "")
	if err != nil {
		return false
	}
	return len(topics) >= 6
}

// seedUser seeds a single user (idempotent)
func (s *DatabaseSeeder) seedUser(ctx context.Context, user models.User) error {
	existingUser, err := s.repo.GetUserByEmail(ctx, user.Email)
	if err != nil {
		return fmt.Errorf("error checking user %s: %w", user.Email, err)
	}

	if existingUser != nil {
		slog.Info("User already exists, skipping", "email", user.Email)
		return nil
	}

	if err := s.repo.CreateUser(ctx, &user); err != nil {
		return fmt.Errorf("failed to create user %s: %w", user.Email, err)
	}

	slog.Info("Created user", "email", user.Email)
	return nil
}

// seedTopic seeds a single topic (idempotent, keyed by title)
func (s *DatabaseSeeder) seedTopic(ctx context.Context, topic models.Topic) error {
	existing, err := s.repo.GetTopics(ctx, "")
	if err != nil {
		return fmt.Errorf("error checking topics: %w", err)
	}

	for _, existingTopic := range existing {
		if existingTopic.Title == topic.Title {
			slog.Info("Topic already exists, skipping", "title", topic.Title)
			return nil
		}
	}

	if err := s.repo.CreateTopic(ctx, &topic); err != nil {
		return fmt.Errorf("failed to create topic %s: %w", topic.Title, err)
	}

	slog.Info("Created topic", "title", topic.Title)
	return nil
}
