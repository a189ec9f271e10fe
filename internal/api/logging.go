package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/logwire/internal/api/models"
	"github.com/smazurov/logwire/internal/logconfig"
	"github.com/smazurov/logwire/internal/logging"
)

// registerLoggingRoutes registers the state and reload endpoints.
func (s *Server) registerLoggingRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-logging-state",
		Method:      http.MethodGet,
		Path:        "/api/logging/state",
		Summary:     "Logging State",
		Description: "Describe the active sinks, levels, extra fields and activation rules",
		Tags:        []string{"logging"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.LoggingStateResponse, error) {
		return &models.LoggingStateResponse{Body: s.stateData()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "reload-logging",
		Method:      http.MethodPost,
		Path:        "/api/logging/reload",
		Summary:     "Reload Logging",
		Description: "Apply the configured logging document, or the inline document in the request body",
		Tags:        []string{"logging"},
		Security:    withAuth(),
		Errors:      []int{400, 401, 422, 500},
	}, func(_ context.Context, input *models.ReloadRequest) (*models.ReloadResponse, error) {
		res, source, err := s.reload(input.Body)
		if err != nil {
			return nil, reloadError(err)
		}
		s.setSource(source)
		return &models.ReloadResponse{
			Body: models.ReloadData{
				Source:     source,
				SinkIDs:    res.SinkIDs,
				Generation: res.Generation,
			},
		}, nil
	})
}

func (s *Server) stateData() models.LoggingStateData {
	return models.LoggingStateData{
		Generation: s.state.Generation(),
		Source:     s.source(),
		Sinks:      s.state.Sinks(),
		Levels:     s.state.Levels(),
		Extra:      s.state.Extra(),
		Activation: s.state.Activation(),
		Patch:      s.state.HasPatch(),
	}
}

var errNoDocument = errors.New("no logging document configured and none in the request body")

func (s *Server) reload(body *models.ReloadRequestData) (*logconfig.Result, string, error) {
	if body != nil && body.Document != "" {
		format, err := logconfig.ParseFormat(body.Format)
		if err != nil {
			return nil, "", err
		}
		res, err := s.loader.LoadBytes([]byte(body.Document), format)
		return res, "<bytes>", err
	}

	if s.options.ConfigPath == "" {
		return nil, "", errNoDocument
	}
	s.logger.Info("Reloading logging configuration", "path", s.options.ConfigPath)
	res, err := s.loader.LoadFile(s.options.ConfigPath, s.options.ConfigFormat)
	return res, s.options.ConfigPath, err
}

// reloadError maps pipeline failures onto HTTP status codes.
func reloadError(err error) error {
	switch logconfig.KindOf(err) {
	case logconfig.FormatError, logconfig.ResolutionError, logconfig.ValidationError:
		return huma.Error422UnprocessableEntity(err.Error(), err)
	case logconfig.ApplyError:
		return huma.Error500InternalServerError(err.Error(), err)
	}
	return huma.Error400BadRequest(err.Error(), err)
}

func sinkIDs(sinks []logging.SinkInfo) []int {
	ids := make([]int, len(sinks))
	for i, info := range sinks {
		ids[i] = info.ID
	}
	return ids
}
