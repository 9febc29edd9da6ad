package protocol

import (
	"context"

	"github.com/liaozhiqiu/lsprpc/invoke"
)

// ShowNotification sends window/showMessage through client, the outbound
// façade every server-initiated notification in this package goes through
// (invoke.Client.Notify ultimately reaches the Output Handler, spec.md
// §4.7).
func ShowNotification(ctx context.Context, client *invoke.Client, msgType MessageType, message string) error {
	params := ShowMessageParams{
		Type:    msgType,
		Message: message,
	}
	return client.Notify(ctx, MethodWindowShowMessage, params)
}

// SendDiagnostics publishes the current full set of diagnostics for uri.
func SendDiagnostics(ctx context.Context, client *invoke.Client, uri DocumentURI, diagnostics []Diagnostic) error {
	params := PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnostics,
	}
	return client.Notify(ctx, MethodTextDocumentPublishDiagnostics, params)
}
