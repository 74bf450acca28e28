package main

import (
	"context"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/calendar"
	"github.com/hackgods/clinic-booking/internal/config"
	"github.com/hackgods/clinic-booking/internal/db"
	"github.com/hackgods/clinic-booking/internal/identity"
	"github.com/hackgods/clinic-booking/internal/logging"
)

const (
	doctorCount  = 20
	patientCount = 2000
)

var specializations = []string{
	"General Medicine",
	"Dermatology",
	"Orthopedics",
	"Pediatrics",
	"Psychiatry",
	"ENT",
	"Ophthalmology",
	"Dentistry",
}

var patientCategories = []identity.Role{
	identity.RoleStudent,
	identity.RoleFaculty,
	identity.RoleStaff,
	identity.RoleResident,
}

var medicines = []appointment.Medicine{
	{Name: "Paracetamol 500mg", Quantity: 500, Unit: "tablet"},
	{Name: "Ibuprofen 400mg", Quantity: 300, Unit: "tablet"},
	{Name: "Cetirizine 10mg", Quantity: 200, Unit: "tablet"},
	{Name: "Amoxicillin 250mg", Quantity: 150, Unit: "capsule"},
	{Name: "ORS sachet", Quantity: 400, Unit: "sachet"},
	{Name: "Cough syrup", Quantity: 80, Unit: "bottle"},
	{Name: "Antiseptic cream", Quantity: 60, Unit: "tube"},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("config load error: " + err.Error())
	}
	logger, err := logging.New(cfg.Env, "seed")
	if err != nil {
		panic("logger init error: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	faker := gofakeit.New(uint64(time.Now().UnixNano()))
	store := appointment.NewPgStore(pool)

	doctorIDs, err := seedDoctors(ctx, pool, faker, doctorCount)
	if err != nil {
		logger.Fatal("seed doctors", zap.Error(err))
	}
	logger.Info("doctors seeded", zap.Int("count", len(doctorIDs)))

	templates, err := seedTemplates(ctx, store, faker, doctorIDs)
	if err != nil {
		logger.Fatal("seed templates", zap.Error(err))
	}
	logger.Info("templates seeded", zap.Int("count", templates))

	if err := seedPatients(ctx, pool, faker, patientCount, logger); err != nil {
		logger.Fatal("seed patients", zap.Error(err))
	}

	for _, m := range medicines {
		if _, err := store.InsertMedicine(ctx, m); err != nil {
			logger.Warn("medicine not seeded", zap.String("name", m.Name), zap.Error(err))
		}
	}
	logger.Info("seed complete")
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, count int) ([]int64, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]int64, 0, count)
	for i := 0; i < count; i++ {
		var id int64
		err := tx.QueryRow(ctx, `
			INSERT INTO doctors (name, email, specialization)
			VALUES ($1, $2, $3)
			RETURNING id
		`, "Dr. "+faker.Name(), fmt.Sprintf("doctor%03d.%s", i, faker.Email()), specializations[faker.Number(0, len(specializations)-1)]).Scan(&id)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return ids, nil
}

// seedTemplates gives each doctor a 09:00-12:00 window on weekdays, plus an
// afternoon window on roughly half the days that may overlap the morning.
func seedTemplates(ctx context.Context, store *appointment.PgStore, faker *gofakeit.Faker, doctorIDs []int64) (int, error) {
	n := 0
	for _, doctorID := range doctorIDs {
		for day := calendar.Monday; day <= calendar.Friday; day++ {
			windows := [][2]int{{9, 12}}
			if faker.Bool() {
				windows = append(windows, [2]int{faker.Number(11, 14), faker.Number(15, 18)})
			}
			for _, w := range windows {
				start, err := calendar.NewClock(w[0], 0)
				if err != nil {
					return n, err
				}
				end, err := calendar.NewClock(w[1], 0)
				if err != nil {
					return n, err
				}
				_, err = store.InsertTemplate(ctx, appointment.AvailabilityTemplate{
					DoctorID: doctorID,
					Day:      day,
					Start:    start,
					End:      end,
				})
				if err != nil {
					return n, err
				}
				n++
			}
		}
	}
	return n, nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, count int, logger *zap.Logger) error {
	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := min(offset+batchSize, count)

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			category := patientCategories[faker.Number(0, len(patientCategories)-1)]
			_, err := tx.Exec(ctx, `
				INSERT INTO patients (name, email, category)
				VALUES ($1, $2, $3)
				ON CONFLICT (email) DO NOTHING
			`, faker.Name(), fmt.Sprintf("p%05d.%s", i, faker.Email()), string(category))
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}
		logger.Info("patients seeded", zap.Int("done", end), zap.Int("total", count))
	}
	return nil
}
