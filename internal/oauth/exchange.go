package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
)

// AuthCodeURL arma la URL de autorización con PKCE S256. extra agrega
// parámetros propios del provider (ej: allow_signup).
func AuthCodeURL(cfg *oauth2.Config, state, codeChallenge string, extra ...oauth2.AuthCodeOption) string {
	opts := make([]oauth2.AuthCodeOption, 0, len(extra)+2)
	opts = append(opts,
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
	opts = append(opts, extra...)
	return cfg.AuthCodeURL(state, opts...)
}

// Exchange hace el POST al token endpoint con code_verifier, usando client
// (que trae el timeout). Los errores salen clasificados como *ProviderError.
func Exchange(ctx context.Context, p ProviderID, cfg *oauth2.Config, client *http.Client, code, verifier string) (*Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, client)
	tok, err := cfg.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, Classify(p, "exchange", err)
	}
	out := &Token{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}
	if raw, ok := tok.Extra("id_token").(string); ok {
		out.IDToken = raw
	}
	return out, nil
}

// GetJSON hace un GET autenticado con Bearer y decodifica el body en out.
// Non-2xx => KindRejected con code "http_<status>" (o el "error" del body si viene).
func GetJSON(ctx context.Context, p ProviderID, op string, client *http.Client, url, accessToken string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Classify(p, op, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return Network(p, op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Network(p, op, err)
	}
	if resp.StatusCode/100 != 2 {
		var e struct {
			Error            string `json:"error"`
			ErrorDescription string `json:"error_description"`
			Message          string `json:"message"`
		}
		_ = json.Unmarshal(body, &e)
		code := e.Error
		if code == "" {
			code = HTTPStatusCode(resp.StatusCode)
		}
		desc := e.ErrorDescription
		if desc == "" {
			desc = e.Message
		}
		return Rejected(p, op, code, desc)
	}
	if err := json.Unmarshal(body, out); err != nil {
		pe := Rejected(p, op, "invalid_response", "")
		pe.Err = fmt.Errorf("decode %s: %w", op, err)
		return pe
	}
	return nil
}
