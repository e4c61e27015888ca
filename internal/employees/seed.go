package employees

import (
	"context"
	"fmt"
	"os"

	"receipt-agent/internal/models"

	"gopkg.in/yaml.v3"
)

type seedFile struct {
	Employees []*models.Employee `yaml:"employees"`
}

// LoadSeed reads an employee seed file.
func LoadSeed(path string) ([]*models.Employee, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return ParseSeed(data)
}

func ParseSeed(data []byte) ([]*models.Employee, error) {
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	for i, emp := range f.Employees {
		if emp == nil || emp.ID == "" {
			return nil, fmt.Errorf("seed entry %d: id is required", i)
		}
	}
	return f.Employees, nil
}

// Seed upserts every employee and returns how many were written.
func (d *Directory) Seed(ctx context.Context, emps []*models.Employee) (int, error) {
	for i, emp := range emps {
		if err := d.Upsert(ctx, emp); err != nil {
			return i, fmt.Errorf("seed %s: %w", emp.ID, err)
		}
	}
	return len(emps), nil
}
