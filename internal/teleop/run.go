package teleop

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
)

// Run dials the bridge and drives the terminal UI until the user quits or ctx
// is cancelled.
func Run(ctx context.Context, url, origin string, logger zerolog.Logger) error {
	client, err := Dial(ctx, url, origin)
	if err != nil {
		return err
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Debug().Err(err).Msg("closing bridge connection")
		}
	}()
	logger.Info().Str("url", url).Msg("connected to bridge")

	p := tea.NewProgram(NewModel(client, client.Events(), url), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	if err := client.Err(); err != nil {
		logger.Warn().Err(err).Msg("bridge connection ended with error")
	}
	return nil
}
