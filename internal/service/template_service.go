// internal/service/template_service.go
package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/brunao23/GerenciaIA-sub000/internal/repository"
)

const (
	// GenericFollowUpTemplate is used when a stage has no active template.
	GenericFollowUpTemplate = "Oi {nome}! Passando para saber se ainda posso te ajudar. Qualquer dúvida, estou à disposição."

	// DefaultLeadName replaces {nome} when the lead's name is unknown.
	DefaultLeadName = "cliente"
)

func RenderTemplate(template string, data map[string]string) string {
	result := template
	for k, v := range data {
		result = strings.ReplaceAll(result, "{"+k+"}", v)
	}
	return result
}

// RenderFollowUp fills the {nome} placeholder.
func RenderFollowUp(template string, leadName *string) string {
	name := DefaultLeadName
	if leadName != nil && strings.TrimSpace(*leadName) != "" {
		name = strings.TrimSpace(*leadName)
	}
	return RenderTemplate(template, map[string]string{"nome": name})
}

type TemplateService struct {
	Templates repository.TemplateRepositoryInterface
	Logger    *zap.Logger
}

// GetTemplate returns the active text for a stage. A missing, blank or
// unreadable template falls back to the generic text and never blocks dispatch.
func (s *TemplateService) GetTemplate(ctx context.Context, stage int) string {
	if s.Templates == nil {
		return GenericFollowUpTemplate
	}
	t, err := s.Templates.GetActiveByStage(ctx, stage)
	if err != nil {
		if s.Logger != nil {
			s.Logger.Warn("template lookup failed, using generic text", zap.Int("stage", stage), zap.Error(err))
		}
		return GenericFollowUpTemplate
	}
	if t == nil || strings.TrimSpace(t.TemplateText) == "" {
		return GenericFollowUpTemplate
	}
	return t.TemplateText
}

// Message renders the stage template for a lead.
func (s *TemplateService) Message(ctx context.Context, stage int, leadName *string) string {
	return RenderFollowUp(s.GetTemplate(ctx, stage), leadName)
}
