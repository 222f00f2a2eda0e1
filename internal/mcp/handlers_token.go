package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/yte121/openswarm/internal/audit"
	"github.com/yte121/openswarm/internal/auth"
)

// TokenParams is the unified params struct for the token tool
type TokenParams struct {
	Action string `json:"action"` // Required: create, list, revoke

	// For create
	Name  string `json:"name,omitempty"`
	Scope string `json:"scope,omitempty"`

	// For revoke
	TokenID string `json:"token_id,omitempty"`
}

var tokenActions = []string{"create", "list", "revoke"}

// handleToken is the unified handler for the token tool
func (s *Server) handleToken(ctx context.Context, request *mcp.CallToolRequest, params *TokenParams) (*mcp.CallToolResult, any, error) {
	if params.Action == "" {
		return nil, nil, missingActionError("token", tokenActions)
	}

	switch params.Action {
	case "create":
		return s.tokenCreate(ctx, params)
	case "list":
		return s.tokenList(ctx)
	case "revoke":
		return s.tokenRevoke(ctx, params)
	default:
		return nil, nil, actionError("token", params.Action, tokenActions)
	}
}

func (s *Server) tokenCreate(ctx context.Context, params *TokenParams) (*mcp.CallToolResult, any, error) {
	authCtx, err := requireAdmin(ctx)
	if err != nil {
		return nil, nil, err
	}

	if params.Name == "" {
		return nil, nil, fmt.Errorf("name is required")
	}
	if params.Scope == "" {
		return nil, nil, fmt.Errorf("scope is required")
	}
	if !auth.IsValidScope(params.Scope) {
		return nil, nil, fmt.Errorf("invalid scope '%s'. Valid scopes: %s, %s", params.Scope, auth.ScopeAdmin, auth.ScopeAdminRO)
	}

	callerTokenID, callerScope := getTokenInfo(authCtx)
	token, tokenID, err := s.authStore.CreateToken(params.Name, params.Scope, nil)
	if err != nil {
		audit.LogFailure(audit.OpTokenCreate, callerTokenID, callerScope, "", err)
		return nil, nil, fmt.Errorf("failed to create token: %w", err)
	}

	audit.Log(&audit.Event{
		Operation:  audit.OpTokenCreate,
		TokenID:    callerTokenID,
		TokenScope: callerScope,
		Success:    true,
		Details:    map[string]interface{}{"new_token_name": params.Name, "new_token_scope": params.Scope},
	})

	result := "✅ Token created successfully!\n\n"
	result += fmt.Sprintf("Token ID: %s\n", tokenID)
	result += fmt.Sprintf("Name:     %s\n", token.Name)
	result += fmt.Sprintf("Scope:    %s\n", token.Scope)
	result += "\n⚠️  IMPORTANT: Save this token now. It cannot be retrieved later."

	return NewTextResult(result), nil, nil
}

func (s *Server) tokenList(ctx context.Context) (*mcp.CallToolResult, any, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, nil, err
	}

	tokens, err := s.authStore.ListTokens()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list tokens: %w", err)
	}

	if len(tokens) == 0 {
		return NewTextResult("No tokens found."), nil, nil
	}

	result := fmt.Sprintf("Found %d token(s):\n\n", len(tokens))
	for _, t := range tokens {
		lastUsed := "never"
		if t.LastUsedAt != nil {
			lastUsed = t.LastUsedAt.Format("2006-01-02 15:04")
		}
		result += fmt.Sprintf("• %s\n", maskTokenID(t.ID))
		result += fmt.Sprintf("  Name:      %s\n", t.Name)
		result += fmt.Sprintf("  Scope:     %s\n", t.Scope)
		result += fmt.Sprintf("  Created:   %s\n", t.CreatedAt.Format("2006-01-02 15:04"))
		result += fmt.Sprintf("  Last Used: %s\n\n", lastUsed)
	}

	return NewTextResult(result), nil, nil
}

func (s *Server) tokenRevoke(ctx context.Context, params *TokenParams) (*mcp.CallToolResult, any, error) {
	authCtx, err := requireAdmin(ctx)
	if err != nil {
		return nil, nil, err
	}

	if params.TokenID == "" {
		return nil, nil, fmt.Errorf("token_id is required")
	}

	callerTokenID, callerScope := getTokenInfo(authCtx)
	if err := s.authStore.RevokeToken(params.TokenID); err != nil {
		audit.LogFailure(audit.OpTokenRevoke, callerTokenID, callerScope, "", err)
		return nil, nil, fmt.Errorf("failed to revoke token: %w", err)
	}

	audit.Log(&audit.Event{
		Operation:  audit.OpTokenRevoke,
		TokenID:    callerTokenID,
		TokenScope: callerScope,
		Success:    true,
		Details:    map[string]interface{}{"revoked_token_id": maskTokenID(params.TokenID)},
	})

	return NewTextResult(fmt.Sprintf("✅ Token %s revoked successfully.", maskTokenID(params.TokenID))), nil, nil
}

func maskTokenID(tokenID string) string {
	if len(tokenID) <= 12 {
		return "***"
	}
	return tokenID[:8] + "..." + tokenID[len(tokenID)-4:]
}
