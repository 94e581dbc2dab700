package main

import (
	"context"
	"flag"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"cpo/internal/config"
	"cpo/internal/db"
	"cpo/internal/models"
	"cpo/internal/registry"
	"cpo/internal/repo"
	"cpo/internal/services"
)

func main() {
	country := flag.String("country", "NL", "remote party country code")
	partyID := flag.String("party", "EMS", "remote party id")
	role := flag.String("role", string(models.RoleEMSP), "remote party role (EMSP or CPO)")
	name := flag.String("name", "Example EMSP", "remote party business name")
	token := flag.String("token", "devtoken", "token the party calls us with (stored hashed)")
	outToken := flag.String("out_token", "", "token we call the party with")
	versionsURL := flag.String("versions_url", "", "versions URL of the party")
	locations := flag.Int("locations", 3, "number of sample locations to create")
	currency := flag.String("currency", "EUR", "currency of the sample tariff")
	flag.Parse()

	log, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	d, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("connect", zap.Error(err))
	}
	defer d.Close()
	if err := d.Migrate(ctx); err != nil {
		log.Fatal("migrate", zap.Error(err))
	}

	party := models.RemoteParty{
		ID:           models.NewPartyIdentity(strings.ToUpper(*country), strings.ToUpper(*partyID), models.Role(strings.ToUpper(*role))),
		BusinessName: *name,
		Incoming:     []models.AccessCredential{{Token: *token}},
	}
	if *outToken != "" && *versionsURL != "" {
		party.Outgoing = []models.OutgoingCredential{{Token: *outToken, VersionsURL: *versionsURL}}
	}
	reg := registry.New(repo.NewPartiesRepo(d.Pool), log)
	if err := reg.Upsert(ctx, party); err != nil {
		log.Fatal("seed party", zap.Error(err))
	}

	self := cfg.Self()
	now := time.Now().UTC()
	tariffs := services.NewResourceService[models.Tariff](models.KindTariff,
		repo.NewResourcesRepo[models.Tariff](d.Pool, models.KindTariff), models.MatchTariff, false, log)
	tariffID := models.NewIdentity(self.CountryCode, self.PartyID, "STANDARD")
	if _, _, err := tariffs.Put(ctx, tariffID, models.Tariff{
		Currency: strings.ToUpper(*currency),
		Type:     "REGULAR",
		Elements: []models.TariffElement{{
			PriceComponents: []models.PriceComponent{{Type: "ENERGY", Price: 0.39, StepSize: 1}},
		}},
		LastUpdated: now,
	}, services.WriteOptions{}); err != nil {
		log.Fatal("seed tariff", zap.Error(err))
	}

	locs := services.NewResourceService[models.Location](models.KindLocation,
		repo.NewResourcesRepo[models.Location](d.Pool, models.KindLocation), models.MatchLocation, false, log)
	for i := 1; i <= *locations; i++ {
		id := fmt.Sprintf("LOC%03d", i)
		_, _, err := locs.Put(ctx, models.NewIdentity(self.CountryCode, self.PartyID, id), models.Location{
			Publish:     true,
			Name:        "Sample site " + id,
			Address:     fmt.Sprintf("Sample Street %d", i),
			City:        "Berlin",
			Country:     "DEU",
			Coordinates: models.GeoLocation{Latitude: "52.520008", Longitude: "13.404954"},
			TimeZone:    "Europe/Berlin",
			EVSEs: []models.EVSE{{
				UID:    id + "-1",
				Status: "AVAILABLE",
				Connectors: []models.Connector{{
					ID: "1", Standard: "IEC_62196_T2", Format: "SOCKET", PowerType: "AC_3_PHASE",
					MaxVoltage: 230, MaxAmperage: 32, TariffIDs: []string{tariffID.ID}, LastUpdated: now,
				}},
				LastUpdated: now,
			}},
			LastUpdated: now,
		}, services.WriteOptions{})
		if err != nil {
			log.Fatal("seed location", zap.String("id", id), zap.Error(err))
		}
	}

	fmt.Println("Seeded party:", party.ID, "locations:", *locations, "tariff:", tariffID.ID)
}
