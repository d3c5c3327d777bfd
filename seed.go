package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/pathakanu/impact/internal/cadence"
	"github.com/pathakanu/impact/internal/display"
	"github.com/pathakanu/impact/internal/model"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var seedFile string

type seedTemplate struct {
	ID            string `yaml:"id"`
	Name          string `yaml:"name"`
	Subject       string `yaml:"subject"`
	Body          string `yaml:"body"`
	SummaryPrompt string `yaml:"summaryPrompt"`
}

type seedCommitment struct {
	ID       string   `yaml:"id"`
	Name     string   `yaml:"name"`
	Active   *bool    `yaml:"active"`
	Cadence  string   `yaml:"cadence"`
	Trigger  string   `yaml:"trigger"`
	Cutoff   string   `yaml:"cutoff"`
	Template string   `yaml:"template"`
	Tags     []string `yaml:"tags"`
}

type seedDoc struct {
	Templates   []seedTemplate   `yaml:"templates"`
	Commitments []seedCommitment `yaml:"commitments"`
}

// parseSeed decodes and validates a seed document. Every problem found is
// reported, not just the first.
func parseSeed(data []byte) ([]model.Template, []model.Commitment, error) {
	var doc seedDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("parse seed YAML: %w", err)
	}

	var errs []error
	templateIDs := make(map[string]bool, len(doc.Templates))
	templates := make([]model.Template, 0, len(doc.Templates))
	for i, t := range doc.Templates {
		id := strings.TrimSpace(t.ID)
		switch {
		case id == "":
			errs = append(errs, fmt.Errorf("templates[%d]: id is required", i))
			continue
		case templateIDs[id]:
			errs = append(errs, fmt.Errorf("templates[%d]: duplicate id %q", i, id))
			continue
		case strings.TrimSpace(t.Body) == "":
			errs = append(errs, fmt.Errorf("template %q: body is required", id))
		}
		templateIDs[id] = true
		templates = append(templates, model.Template{
			ID:            id,
			Name:          t.Name,
			SubjectLine:   t.Subject,
			EmailBody:     t.Body,
			SummaryPrompt: t.SummaryPrompt,
		})
	}

	commitmentIDs := make(map[string]bool, len(doc.Commitments))
	commitments := make([]model.Commitment, 0, len(doc.Commitments))
	for i, c := range doc.Commitments {
		id := strings.TrimSpace(c.ID)
		if id == "" {
			errs = append(errs, fmt.Errorf("commitments[%d]: id is required", i))
			continue
		}
		if commitmentIDs[id] {
			errs = append(errs, fmt.Errorf("commitments[%d]: duplicate id %q", i, id))
			continue
		}
		commitmentIDs[id] = true

		cad, err := model.ParseCadence(c.Cadence)
		if err != nil {
			errs = append(errs, fmt.Errorf("commitment %q: %w", id, err))
		}
		if _, _, err := cadence.ParseClock(c.Trigger); err != nil {
			errs = append(errs, fmt.Errorf("commitment %q: trigger: %w", id, err))
		}
		if c.Cutoff != "" {
			if _, _, err := cadence.ParseClock(c.Cutoff); err != nil {
				errs = append(errs, fmt.Errorf("commitment %q: cutoff: %w", id, err))
			}
		}
		if !templateIDs[c.Template] {
			errs = append(errs, fmt.Errorf("commitment %q: unknown template %q", id, c.Template))
		}

		active := true
		if c.Active != nil {
			active = *c.Active
		}
		commitments = append(commitments, model.Commitment{
			ID:          id,
			Name:        c.Name,
			Active:      active,
			Cadence:     cad,
			TriggerTime: strings.TrimSpace(c.Trigger),
			CutoffTime:  strings.TrimSpace(c.Cutoff),
			TemplateID:  c.Template,
			Tags:        c.Tags,
		})
	}

	if err := errors.Join(errs...); err != nil {
		return nil, nil, err
	}
	return templates, commitments, nil
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load templates and commitments from a YAML file",
	Long: `Insert or update templates and commitments from a YAML file. Records are
matched by id, so seeding the same file twice is harmless. A commitment's
last-sent time is never touched.`,
	Example: `  impact seed --file commitments.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(seedFile)
		if err != nil {
			return fmt.Errorf("read seed file: %w", err)
		}
		templates, commitments, err := parseSeed(data)
		if err != nil {
			return err
		}

		st, err := openStore()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		for i := range templates {
			if err := st.UpsertTemplate(ctx, &templates[i]); err != nil {
				return fmt.Errorf("template %q: %w", templates[i].ID, err)
			}
		}
		for i := range commitments {
			if err := st.UpsertCommitment(ctx, &commitments[i]); err != nil {
				return fmt.Errorf("commitment %q: %w", commitments[i].ID, err)
			}
		}

		display.SuccessMsg(cmd.OutOrStdout(), "seeded %d templates and %d commitments", len(templates), len(commitments))
		return nil
	},
}

func init() {
	seedCmd.Flags().StringVarP(&seedFile, "file", "f", "commitments.yaml", "Seed file to load")
	rootCmd.AddCommand(seedCmd)
}
