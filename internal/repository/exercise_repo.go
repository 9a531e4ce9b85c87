package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-reading-api/internal/models"
)

// ExerciseFilter allows narrowing exercise queries.
type ExerciseFilter struct {
	Level      *string
	Type       *string
	SourceType *string
	Status     *string
	Page       int
	PageSize   int
}

// ExerciseRepository defines data operations for exercises and their questions.
type ExerciseRepository interface {
	Create(ctx context.Context, exercise *models.Exercise) error
	GetByID(ctx context.Context, id uint) (models.Exercise, error)
	List(ctx context.Context, filter ExerciseFilter) ([]models.Exercise, int64, error)
}

type exerciseRepository struct {
	db *gorm.DB
}

// NewExerciseRepository instantiates the repository.
func NewExerciseRepository(db *gorm.DB) ExerciseRepository {
	return &exerciseRepository{db: db}
}

func orderedQuestions(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

func (r *exerciseRepository) Create(ctx context.Context, exercise *models.Exercise) error {
	return r.db.WithContext(ctx).Create(exercise).Error
}

func (r *exerciseRepository) GetByID(ctx context.Context, id uint) (models.Exercise, error) {
	var exercise models.Exercise
	if err := r.db.WithContext(ctx).Preload("Questions", orderedQuestions).First(&exercise, id).Error; err != nil {
		return models.Exercise{}, err
	}

	return exercise, nil
}

func (r *exerciseRepository) List(ctx context.Context, filter ExerciseFilter) ([]models.Exercise, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Exercise{})

	if filter.Level != nil {
		query = query.Where("level = ?", *filter.Level)
	}
	if filter.Type != nil {
		query = query.Where("type = ?", *filter.Type)
	}
	if filter.SourceType != nil {
		query = query.Where("source_type = ?", *filter.SourceType)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page, size := normalizePage(filter.Page, filter.PageSize)

	var exercises []models.Exercise
	if err := query.Preload("Questions", orderedQuestions).
		Order("created_at DESC").
		Order("id DESC").
		Offset((page - 1) * size).
		Limit(size).
		Find(&exercises).Error; err != nil {
		return nil, 0, err
	}

	return exercises, total, nil
}

func normalizePage(page, size int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	if size > 100 {
		size = 100
	}
	return page, size
}
