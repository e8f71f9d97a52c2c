package action

import (
	xerrors "github.com/DenzelPenzel/ton-agent/internal/errors"
)

func actionError(name string, cause error, message string) error {
	opts := []xerrors.Option{xerrors.WithMetadata("action", name)}
	if cause == nil {
		return xerrors.New(xerrors.CodeAction, message, opts...)
	}
	return xerrors.Wrap(xerrors.CodeAction, cause, message, opts...)
}

func providerError(provider string, cause error, message string) error {
	opts := []xerrors.Option{xerrors.WithMetadata("provider", provider)}
	if cause == nil {
		return xerrors.New(xerrors.CodeActionProvider, message, opts...)
	}
	return xerrors.Wrap(xerrors.CodeActionProvider, cause, message, opts...)
}
