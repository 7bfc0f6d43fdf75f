package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/psds-microservice/support-ticket-service/internal/application"
	"github.com/psds-microservice/support-ticket-service/internal/classifier"
	"github.com/psds-microservice/support-ticket-service/internal/handler"
)

var classifyCmd = &cobra.Command{
	Use:   "classify <description...>",
	Short: "Ask the configured LLM for a category and priority and print the JSON result",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runClassify,
}

func runClassify(cmd *cobra.Command, args []string) error {
	desc := strings.TrimSpace(strings.Join(args, " "))
	if desc == "" {
		return errors.New("classify: description must not be blank")
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cls := classifier.New(application.ClassifierConfig(cfg))
	resp := handler.SuggestionResponse(cls.Classify(context.Background(), desc))

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}
