package database

import (
	"fmt"
	"log"
	"os"

	"github.com/edumesh/edumesh-api/model"
	"github.com/edumesh/edumesh-api/utils/auth"
	"gorm.io/gorm"
)

// Seeder handles database seeding operations
type Seeder struct {
	db *gorm.DB
}

// NewSeeder creates a new seeder instance
func NewSeeder(db *gorm.DB) *Seeder {
	return &Seeder{db: db}
}

// SeedAll runs all seed functions
func (s *Seeder) SeedAll() error {
	log.Println("🌱 Starting database seeding...")

	// Run seeds in order (respecting foreign key constraints)
	if err := s.SeedHierarchy(); err != nil {
		return fmt.Errorf("failed to seed institution hierarchy: %w", err)
	}

	if err := s.SeedAdminUsers(); err != nil {
		return fmt.Errorf("failed to seed admin users: %w", err)
	}

	log.Println("✅ Database seeding completed successfully!")
	return nil
}

// SeedHierarchy creates a minimal ministry -> region -> sector -> school tree
func (s *Seeder) SeedHierarchy() error {
	var count int64
	if err := s.db.Model(&model.Institution{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		log.Println("⏭️  Institutions already exist, skipping...")
		return nil
	}

	ministry := &model.Institution{
		Name:            "Ministry of Education",
		ShortName:       "MoE",
		Type:            "ministry",
		InstitutionCode: "MIN-001",
		Level:           model.InstitutionLevelMinistry,
		IsActive:        true,
	}
	if err := s.db.Create(ministry).Error; err != nil {
		return err
	}

	regions := []struct {
		name string
		code string
	}{
		{"Northern Region Education Office", "REG-N"},
		{"Southern Region Education Office", "REG-S"},
	}

	for _, r := range regions {
		region := &model.Institution{
			Name:            r.name,
			Type:            "region",
			InstitutionCode: r.code,
			RegionCode:      r.code,
			ParentID:        &ministry.ID,
			Level:           model.InstitutionLevelRegion,
			IsActive:        true,
		}
		if err := s.db.Create(region).Error; err != nil {
			return err
		}

		for i := 1; i <= 2; i++ {
			sector := &model.Institution{
				Name:            fmt.Sprintf("%s Sector %d", r.name, i),
				Type:            "sector",
				InstitutionCode: fmt.Sprintf("%s-SEC-%d", r.code, i),
				RegionCode:      r.code,
				ParentID:        &region.ID,
				Level:           model.InstitutionLevelSector,
				IsActive:        true,
			}
			if err := s.db.Create(sector).Error; err != nil {
				return err
			}

			for j := 1; j <= 3; j++ {
				school := &model.Institution{
					Name:            fmt.Sprintf("School #%d under %s", j, sector.InstitutionCode),
					Type:            "school",
					InstitutionCode: fmt.Sprintf("%s-SCH-%d", sector.InstitutionCode, j),
					RegionCode:      r.code,
					ParentID:        &sector.ID,
					Level:           model.InstitutionLevelSchool,
					IsActive:        true,
				}
				if err := s.db.Create(school).Error; err != nil {
					return err
				}
			}
		}
	}

	log.Println("✅ Seeded institution hierarchy")
	return nil
}

// SeedAdminUsers creates the default superadmin from environment variables
func (s *Seeder) SeedAdminUsers() error {
	var count int64
	if err := s.db.Model(&model.User{}).Where("role = ?", model.RoleSuperAdmin).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		log.Println("⏭️  Superadmin already exists, skipping...")
		return nil
	}

	adminEmail := os.Getenv("ADMIN_EMAIL")
	adminPassword := os.Getenv("ADMIN_PASSWORD")
	if adminEmail == "" || adminPassword == "" {
		log.Println("⚠️  ADMIN_EMAIL and ADMIN_PASSWORD environment variables not set, skipping superadmin creation")
		return nil
	}

	passwordHash, err := auth.HashPassword(adminPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	var ministry model.Institution
	if err := s.db.Where("level = ?", model.InstitutionLevelMinistry).First(&ministry).Error; err != nil {
		return err
	}

	admin := &model.User{
		Email:         adminEmail,
		PasswordHash:  passwordHash,
		Name:          "System Administrator",
		Role:          model.RoleSuperAdmin,
		InstitutionID: &ministry.ID,
	}
	if err := s.db.Create(admin).Error; err != nil {
		return err
	}

	log.Printf("✅ Seeded superadmin user: %s", adminEmail)
	return nil
}

// RunSeeds is a convenience function to run all seeds
func RunSeeds(db *gorm.DB) error {
	return NewSeeder(db).SeedAll()
}
