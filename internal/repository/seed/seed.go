// Package seed fills any repository implementation with a reproducible demo
// data set for the stub backend.
package seed

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/gvafram3/parcel-console/internal/model"
	"github.com/gvafram3/parcel-console/internal/repository"
)

// Options sizes the demo data set.
type Options struct {
	Offices int
	Parcels int
	// Start is the creation time of the oldest parcel; parcels are spread one hour apart.
	Start time.Time
	// Seed makes the generated names and statuses reproducible.
	Seed uint64
}

// Account is a generated sign-in, printed by the stub server at startup.
type Account struct {
	Email    string
	Password string
	Role     model.Role
	OfficeID string
}

var (
	firstNames = []string{"Ama", "Kofi", "Esi", "Kwame", "Abena", "Yaw", "Akua", "Kojo", "Efua", "Kwesi", "Adjoa", "Fiifi"}
	lastNames  = []string{"Mensah", "Owusu", "Addo", "Boateng", "Asante", "Darko", "Sarpong", "Annan", "Appiah", "Frimpong"}
	streets    = []string{"Ring Road", "Oxford Street", "Liberation Road", "Spintex Road", "Kanda Highway"}
	statuses   = []model.ParcelStatus{model.StatusRegistered, model.StatusAssigned, model.StatusInTransit, model.StatusDelivered, model.StatusReturned}
)

// OfficeID names office n (1-based).
func OfficeID(n int) string { return fmt.Sprintf("office-%d", n) }

// Run fills users and parcels with a reproducible demo data set: one admin,
// and per office a manager, a front desk and a rider.
func Run(ctx context.Context, users repository.UserRepository, parcels repository.ParcelRepository, opts Options) ([]Account, error) {
	if opts.Offices < 1 {
		opts.Offices = 1
	}
	if opts.Start.IsZero() {
		opts.Start = time.Now().Add(-time.Duration(opts.Parcels) * time.Hour)
	}
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))

	accounts := []Account{{Email: "admin@parcels.local", Password: "admin", Role: model.RoleAdmin}}
	for o := 1; o <= opts.Offices; o++ {
		office := OfficeID(o)
		accounts = append(accounts,
			Account{Email: fmt.Sprintf("manager%d@parcels.local", o), Password: "manager", Role: model.RoleManager, OfficeID: office},
			Account{Email: fmt.Sprintf("desk%d@parcels.local", o), Password: "desk", Role: model.RoleFrontdesk, OfficeID: office},
			Account{Email: fmt.Sprintf("rider%d@parcels.local", o), Password: "rider", Role: model.RoleRider, OfficeID: office},
		)
	}

	riders := make(map[string]string, opts.Offices)
	for _, a := range accounts {
		u, err := users.Create(ctx, model.User{
			Name:     personName(rng),
			Email:    a.Email,
			Phone:    phone(rng),
			Role:     a.Role,
			OfficeID: a.OfficeID,
			Active:   true,
		}, a.Password)
		if err != nil {
			return nil, fmt.Errorf("seed user %s: %w", a.Email, err)
		}
		if a.Role == model.RoleRider {
			riders[a.OfficeID] = u.ID
		}
	}

	for i := 0; i < opts.Parcels; i++ {
		office := OfficeID(i%opts.Offices + 1)
		status := statuses[rng.IntN(len(statuses))]
		p := model.Parcel{
			TrackingNumber:  fmt.Sprintf("TRK-%06d", i+1),
			SenderName:      personName(rng),
			SenderPhone:     phone(rng),
			ReceiverName:    personName(rng),
			ReceiverPhone:   phone(rng),
			ReceiverAddress: fmt.Sprintf("%d %s", rng.IntN(200)+1, streets[rng.IntN(len(streets))]),
			OfficeID:        office,
			Status:          status,
			Delivered:       status == model.StatusDelivered,
			DeliveryFee:     float64(5+rng.IntN(46)) / 2,
			CreatedAt:       opts.Start.Add(time.Duration(i) * time.Hour),
		}
		if status != model.StatusRegistered {
			p.RiderID = riders[office]
		}
		if _, err := parcels.Create(ctx, p); err != nil {
			return nil, fmt.Errorf("seed parcel %s: %w", p.TrackingNumber, err)
		}
	}
	return accounts, nil
}

func personName(rng *rand.Rand) string {
	return firstNames[rng.IntN(len(firstNames))] + " " + lastNames[rng.IntN(len(lastNames))]
}

func phone(rng *rand.Rand) string {
	return fmt.Sprintf("0%d%d %03d %04d", 2, rng.IntN(10), rng.IntN(1000), rng.IntN(10000))
}
