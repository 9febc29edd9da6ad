package main

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/liaozhiqiu/lsprpc/protocol"
	"github.com/liaozhiqiu/lsprpc/server"
)

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx := context.Background()

	lspServer := server.NewServer(
		server.WithLogger(logger),
		server.WithContentModifiedSupport(true),
	)

	mustRegisterNotification(lspServer, "textDocument/didOpen", "", handleDidOpen(logger))
	mustRegisterNotification(lspServer, "textDocument/didChange", "textDocument", handleDidChange(logger))
	mustRegisterRequest(lspServer, "textDocument/hover", handleHover(logger))

	logger.Info("starting LSP server")
	if err := lspServer.Run(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
	logger.Info("server stopped")
}

func mustRegisterRequest(s *server.Server, method string, h func(context.Context, json.RawMessage) (interface{}, error)) {
	if _, err := s.RegisterRequest(method, h); err != nil {
		panic(fmt.Sprintf("register %s: %v", method, err))
	}
}

func mustRegisterNotification(s *server.Server, method, group string, h func(context.Context, json.RawMessage) (interface{}, error)) {
	if _, err := s.RegisterNotification(method, group, h); err != nil {
		panic(fmt.Sprintf("register %s: %v", method, err))
	}
}

// handleDidOpen processes textDocument/didOpen notifications.
func handleDidOpen(logger *zap.Logger) func(context.Context, json.RawMessage) (interface{}, error) {
	return func(ctx context.Context, raw json.RawMessage) (interface{}, error) {
		var params protocol.DidOpenTextDocumentParams
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, err
		}
		logger.Info("document opened",
			zap.String("uri", string(params.TextDocument.URI)),
			zap.Int("version", params.TextDocument.Version),
			zap.String("language", params.TextDocument.LanguageID),
		)
		return nil, nil
	}
}

// handleDidChange processes textDocument/didChange notifications. It is
// registered in the "textDocument" serial group so consecutive edits to the
// same connection are applied in on-the-wire order relative to one another.
func handleDidChange(logger *zap.Logger) func(context.Context, json.RawMessage) (interface{}, error) {
	return func(ctx context.Context, raw json.RawMessage) (interface{}, error) {
		var params protocol.DidChangeTextDocumentParams
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, err
		}
		logger.Info("document changed",
			zap.String("uri", string(params.TextDocument.URI)),
			zap.Int("version", params.TextDocument.Version),
		)
		for _, change := range params.ContentChanges {
			if change.Range == nil {
				logger.Debug("full content change", zap.Int("chars", len(change.Text)))
			} else {
				logger.Debug("incremental change", zap.Any("range", change.Range))
			}
		}
		return nil, nil
	}
}

// handleHover processes textDocument/hover requests.
func handleHover(logger *zap.Logger) func(context.Context, json.RawMessage) (interface{}, error) {
	return func(ctx context.Context, raw json.RawMessage) (interface{}, error) {
		var params protocol.HoverParams
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, err
		}
		logger.Info("hover request",
			zap.String("uri", string(params.TextDocument.URI)),
			zap.Uint("line", params.Position.Line),
			zap.Uint("character", params.Position.Character),
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		content := protocol.MarkupContent{
			Kind: protocol.Markdown,
			Value: fmt.Sprintf("## Hover Info\n\nDocument: `%s`\nPosition: Line %d, Char %d",
				params.TextDocument.URI, params.Position.Line, params.Position.Character),
		}
		hoverRange := protocol.Range{
			Start: params.Position,
			End:   protocol.Position{Line: params.Position.Line, Character: params.Position.Character + 5},
		}
		return &protocol.Hover{Contents: content, Range: &hoverRange}, nil
	}
}
