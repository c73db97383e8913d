//cmd/seeder/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/brunao23/GerenciaIA-sub000/internal/config"
	"github.com/brunao23/GerenciaIA-sub000/internal/db"
	"github.com/brunao23/GerenciaIA-sub000/internal/model"
	"github.com/brunao23/GerenciaIA-sub000/internal/repository"
)

// stage templates, one per rung of the ladder
var defaultTemplates = []string{
	"Oi {nome}, tudo bem? Vi que nossa conversa ficou pela metade. Posso te ajudar com mais alguma coisa?",
	"{nome}, passando para saber se você conseguiu pensar no que conversamos. Fico à disposição!",
	"Olá {nome}! Ainda tem interesse? Posso tirar qualquer dúvida que tenha ficado.",
	"{nome}, separei um tempinho para você hoje. Quer retomar de onde paramos?",
	"Oi {nome}, não quero ser inconveniente, mas ainda posso te ajudar se fizer sentido para você.",
	"{nome}, esta é minha última mensagem por aqui. Quando quiser retomar, é só responder!",
}

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatal(err)
	}

	conn, err := db.Open(cfg.Database.Driver, cfg.Database.DSN, nil)
	if err != nil {
		log.Fatal(err)
	}
	defer conn.Close()

	ctx := context.Background()
	templates := &repository.TemplateRepository{DB: conn, Driver: cfg.Database.Driver}
	configs := &repository.MessagingConfigRepository{DB: conn, Driver: cfg.Database.Driver}

	n, err := seedTemplates(ctx, templates)
	if err != nil {
		log.Fatalf("failed to seed templates: %v", err)
	}
	fmt.Printf("Seeded: %d followup templates\n", n)

	mc, err := seedMessagingConfig(ctx, configs, os.Getenv)
	if err != nil {
		log.Fatalf("failed to seed messaging config: %v", err)
	}
	if mc == nil {
		fmt.Println("Skipped messaging config: MESSAGING_API_URL or MESSAGING_INSTANCE not set")
	} else {
		fmt.Printf("Seeded: %s messaging config %q (active)\n", mc.Provider, mc.InstanceName)
	}

	fmt.Println("Database seeding completed successfully!")
}

func seedTemplates(ctx context.Context, repo repository.TemplateRepositoryInterface) (int, error) {
	for i, text := range defaultTemplates {
		t := &model.FollowUpTemplate{AttemptStage: i + 1, TemplateText: text, IsActive: true}
		if err := repo.Upsert(ctx, t); err != nil {
			return i, fmt.Errorf("stage %d: %w", i+1, err)
		}
	}
	return len(defaultTemplates), nil
}

// seedMessagingConfig creates and activates a gateway from MESSAGING_* variables.
// It returns nil when the variables are absent.
func seedMessagingConfig(ctx context.Context, repo repository.MessagingConfigRepositoryInterface, getenv func(string) string) (*model.MessagingConfig, error) {
	apiURL := strings.TrimSpace(getenv("MESSAGING_API_URL"))
	instance := strings.TrimSpace(getenv("MESSAGING_INSTANCE"))
	if apiURL == "" || instance == "" {
		return nil, nil
	}

	mc := &model.MessagingConfig{
		Provider:     strings.ToLower(strings.TrimSpace(getenv("MESSAGING_PROVIDER"))),
		APIURL:       apiURL,
		InstanceName: instance,
		APIKey:       getenv("MESSAGING_API_KEY"),
		PhoneNumber:  getenv("MESSAGING_PHONE_NUMBER"),
	}
	if err := repo.Create(ctx, mc); err != nil {
		return nil, err
	}
	if err := repo.Activate(ctx, mc.ID); err != nil {
		return nil, err
	}
	mc.IsActive = true
	return mc, nil
}
