package vault

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/autobot/fleet/pkg/log"
	"github.com/autobot/fleet/pkg/metrics"
	"github.com/autobot/fleet/pkg/storage"
	"github.com/autobot/fleet/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// vncBasePort is the conventional VNC display port base.
const vncBasePort = 5900

// SecretPayload is the decrypted form of a credential. It exists only in
// memory: on the inbound create/update path and as the result of a token
// exchange. It is never persisted or logged.
type SecretPayload struct {
	Password       string `json:"password,omitempty"`
	PrivateKey     string `json:"private_key,omitempty"`
	CertificatePEM string `json:"certificate_pem,omitempty"`
	KeyPEM         string `json:"key_pem,omitempty"`
	CAChainPEM     string `json:"ca_chain_pem,omitempty"`
}

// CreateInput carries everything needed to create a credential.
type CreateInput struct {
	NodeID        string
	Type          types.CredentialType
	Name          string
	Secret        SecretPayload
	DisplayNumber int // VNC display number
	VNCPort       int // optional explicit VNC port, defaults to 5900+display
	Port          int // optional websockify port
}

// UpdateInput carries a partial credential update. Nil fields are left
// untouched.
type UpdateInput struct {
	Name          *string
	IsActive      *bool
	Secret        *SecretPayload
	DisplayNumber *int
	VNCPort       *int
	Port          *int
}

// Vault stores node credentials encrypted at rest and issues short-lived
// single-use access tokens for plaintext retrieval.
type Vault struct {
	store   storage.Store
	secrets *SecretsManager
	tokens  *TokenStore
	logger  zerolog.Logger
}

// New creates a vault over the given store with the given 32-byte key.
func New(store storage.Store, encryptionKey []byte) (*Vault, error) {
	sm, err := NewSecretsManager(encryptionKey)
	if err != nil {
		return nil, err
	}

	return &Vault{
		store:   store,
		secrets: sm,
		tokens:  NewTokenStore(),
		logger:  log.WithComponent("vault"),
	}, nil
}

// Create encrypts and persists a new credential. The plaintext payload is
// encrypted before the row is written; nothing unencrypted reaches storage.
func (v *Vault) Create(in CreateInput) (*types.Credential, error) {
	node, err := v.store.GetNode(in.NodeID)
	if err != nil {
		return nil, err
	}

	if err := validatePayload(in.Type, in.Secret); err != nil {
		return nil, err
	}

	existing, err := v.store.ListCredentialsByNode(in.NodeID)
	if err != nil {
		return nil, err
	}
	for _, c := range existing {
		if c.Name == in.Name {
			return nil, fmt.Errorf("credential %q already exists for node %s: %w", in.Name, in.NodeID, types.ErrValidation)
		}
	}

	ciphertext, err := v.encryptPayload(in.Secret)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	cred := &types.Credential{
		ID:        uuid.New().String(),
		NodeID:    in.NodeID,
		Type:      in.Type,
		Name:      in.Name,
		Data:      ciphertext,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	switch in.Type {
	case types.CredentialTLS:
		info, err := ParseCertificatePEM([]byte(in.Secret.CertificatePEM))
		if err != nil {
			return nil, err
		}
		cred.TLS = info
	case types.CredentialVNC:
		cred.VNC = buildVNCInfo(in.DisplayNumber, in.VNCPort, in.Port)
	}

	if err := v.store.CreateCredential(cred); err != nil {
		return nil, err
	}

	metrics.CredentialsTotal.WithLabelValues(string(in.Type)).Inc()
	v.logger.Info().
		Str("credential_id", cred.ID).
		Str("node_id", node.ID).
		Str("type", string(in.Type)).
		Msg("credential created")

	return cred, nil
}

// Update applies a partial update. A certificate that fails to parse rejects
// the whole update, leaving the stored metadata intact.
func (v *Vault) Update(id string, in UpdateInput) (*types.Credential, error) {
	cred, err := v.store.GetCredential(id)
	if err != nil {
		return nil, err
	}

	if in.Secret != nil {
		if err := validatePayload(cred.Type, *in.Secret); err != nil {
			return nil, err
		}
		if cred.Type == types.CredentialTLS {
			info, err := ParseCertificatePEM([]byte(in.Secret.CertificatePEM))
			if err != nil {
				return nil, err
			}
			cred.TLS = info
		}
		ciphertext, err := v.encryptPayload(*in.Secret)
		if err != nil {
			return nil, err
		}
		cred.Data = ciphertext
	}

	if in.Name != nil {
		cred.Name = *in.Name
	}
	if in.IsActive != nil {
		cred.IsActive = *in.IsActive
	}
	if cred.Type == types.CredentialVNC && (in.DisplayNumber != nil || in.VNCPort != nil || in.Port != nil) {
		display := cred.VNC.DisplayNumber
		vncPort := 0
		port := cred.VNC.Port
		if in.DisplayNumber != nil {
			display = *in.DisplayNumber
		}
		if in.VNCPort != nil {
			vncPort = *in.VNCPort
		}
		if in.Port != nil {
			port = *in.Port
		}
		cred.VNC = buildVNCInfo(display, vncPort, port)
	}

	cred.UpdatedAt = time.Now()
	if err := v.store.UpdateCredential(cred); err != nil {
		return nil, err
	}

	return cred, nil
}

// Delete removes a credential permanently.
func (v *Vault) Delete(id string) error {
	if _, err := v.store.GetCredential(id); err != nil {
		return err
	}
	return v.store.DeleteCredential(id)
}

// GetConnectionInfo returns the public fields of a credential. With
// issueToken set it also mints a single-use access token and stamps
// last_used on the credential.
func (v *Vault) GetConnectionInfo(id string, issueToken bool) (*types.ConnectionInfo, error) {
	cred, err := v.store.GetCredential(id)
	if err != nil {
		return nil, err
	}

	node, err := v.store.GetNode(cred.NodeID)
	if err != nil {
		return nil, err
	}

	info := v.connectionInfo(cred, node)

	if issueToken {
		token, expiresAt, err := v.tokens.Issue(cred.ID)
		if err != nil {
			return nil, err
		}
		info.Token = token
		info.TokenExpires = expiresAt

		cred.LastUsed = time.Now()
		if err := v.store.UpdateCredential(cred); err != nil {
			v.logger.Warn().Err(err).Str("credential_id", cred.ID).Msg("failed to stamp last_used")
		}
		metrics.TokensIssuedTotal.Inc()
	}

	return info, nil
}

// ExchangeToken redeems a single-use token for the credential plaintext.
// This is the only egress of secrets from the vault. The token entry is
// removed on the first attempt, success or expiry.
func (v *Vault) ExchangeToken(token string) (*SecretPayload, error) {
	credentialID, found, expired := v.tokens.Redeem(token)
	if !found {
		metrics.TokenExchangesTotal.WithLabelValues("invalid").Inc()
		return nil, types.ErrTokenInvalid
	}
	if expired {
		metrics.TokenExchangesTotal.WithLabelValues("expired").Inc()
		return nil, types.ErrTokenExpired
	}

	cred, err := v.store.GetCredential(credentialID)
	if err != nil {
		return nil, err
	}

	payload, err := v.decryptPayload(cred.Data)
	if err != nil {
		return nil, err
	}

	metrics.TokenExchangesTotal.WithLabelValues("ok").Inc()
	return payload, nil
}

// ListByNode returns credentials for one node, optionally active only.
// Returned rows carry ciphertext, never plaintext.
func (v *Vault) ListByNode(nodeID string, activeOnly bool) ([]*types.Credential, error) {
	creds, err := v.store.ListCredentialsByNode(nodeID)
	if err != nil {
		return nil, err
	}
	if !activeOnly {
		return creds, nil
	}

	var filtered []*types.Credential
	for _, c := range creds {
		if c.IsActive {
			filtered = append(filtered, c)
		}
	}
	return filtered, nil
}

// ListFleetEndpoints returns public connection info for every credential of
// the given type across the fleet. No tokens are issued.
func (v *Vault) ListFleetEndpoints(credType types.CredentialType, activeOnly bool) ([]*types.ConnectionInfo, error) {
	creds, err := v.store.ListCredentials()
	if err != nil {
		return nil, err
	}

	var endpoints []*types.ConnectionInfo
	for _, cred := range creds {
		if cred.Type != credType {
			continue
		}
		if activeOnly && !cred.IsActive {
			continue
		}
		node, err := v.store.GetNode(cred.NodeID)
		if err != nil {
			// Node deregistered underneath the credential; skip.
			continue
		}
		endpoints = append(endpoints, v.connectionInfo(cred, node))
	}
	return endpoints, nil
}

// ListExpiringTLS returns TLS credentials whose certificate expires within
// the given number of days.
func (v *Vault) ListExpiringTLS(days int) ([]*types.Credential, error) {
	creds, err := v.store.ListCredentials()
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().Add(time.Duration(days) * 24 * time.Hour)
	var expiring []*types.Credential
	for _, cred := range creds {
		if cred.Type != types.CredentialTLS || cred.TLS == nil {
			continue
		}
		if cred.TLS.NotAfter.Before(cutoff) {
			expiring = append(expiring, cred)
		}
	}
	return expiring, nil
}

// SSHPassword resolves the stored SSH password for a node, used as the SSH
// runner's fallback when key auth is not available. This is an internal
// decrypt path: nothing returned here flows through the read APIs.
func (v *Vault) SSHPassword(nodeID string) (string, bool) {
	creds, err := v.store.ListCredentialsByNode(nodeID)
	if err != nil {
		return "", false
	}

	for _, cred := range creds {
		if cred.Type != types.CredentialSSH || !cred.IsActive {
			continue
		}
		payload, err := v.decryptPayload(cred.Data)
		if err != nil {
			v.logger.Warn().Str("credential_id", cred.ID).Msg("undecryptable ssh credential")
			continue
		}
		if payload.Password != "" {
			return payload.Password, true
		}
	}
	return "", false
}

// StartTokenJanitor runs periodic cleanup of expired tokens until stopCh
// closes.
func (v *Vault) StartTokenJanitor(stopCh <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				v.tokens.CleanupExpired()
			case <-stopCh:
				return
			}
		}
	}()
}

func (v *Vault) connectionInfo(cred *types.Credential, node *types.Node) *types.ConnectionInfo {
	info := &types.ConnectionInfo{
		CredentialID: cred.ID,
		NodeID:       node.ID,
		Type:         cred.Type,
		Name:         cred.Name,
		Host:         node.IPAddress,
		TLS:          cred.TLS,
	}

	switch cred.Type {
	case types.CredentialSSH:
		info.Port = node.SSHPort
		info.Username = node.SSHUser
	case types.CredentialVNC:
		if cred.VNC != nil {
			port := cred.VNC.Port
			if port == 0 {
				port = cred.VNC.VNCPort
			}
			info.Port = port
			info.WebsocketURL = fmt.Sprintf("ws://%s:%d/websockify", node.IPAddress, port)
		}
	}

	return info
}

func (v *Vault) encryptPayload(payload SecretPayload) ([]byte, error) {
	plaintext, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return v.secrets.Encrypt(plaintext)
}

func (v *Vault) decryptPayload(ciphertext []byte) (*SecretPayload, error) {
	plaintext, err := v.secrets.Decrypt(ciphertext)
	if err != nil {
		return nil, err
	}
	var payload SecretPayload
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", types.ErrDecrypt)
	}
	return &payload, nil
}

// buildVNCInfo applies the 5900+display default when no explicit VNC port is
// given.
func buildVNCInfo(display, vncPort, port int) *types.VNCInfo {
	if vncPort == 0 {
		vncPort = vncBasePort + display
	}
	return &types.VNCInfo{
		Port:          port,
		DisplayNumber: display,
		VNCPort:       vncPort,
	}
}

// validatePayload enforces the required secret fields per credential type.
func validatePayload(credType types.CredentialType, payload SecretPayload) error {
	switch credType {
	case types.CredentialSSH:
		if payload.Password == "" && payload.PrivateKey == "" {
			return fmt.Errorf("ssh credential requires password or private key: %w", types.ErrValidation)
		}
	case types.CredentialTLS:
		if payload.CertificatePEM == "" {
			return fmt.Errorf("tls credential requires certificate_pem: %w", types.ErrValidation)
		}
	case types.CredentialVNC:
		if payload.Password == "" {
			return fmt.Errorf("vnc credential requires password: %w", types.ErrValidation)
		}
	default:
		return fmt.Errorf("unknown credential type %q: %w", credType, types.ErrValidation)
	}
	return nil
}
