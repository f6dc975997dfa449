/*
Package vault implements the credential vault: symmetric-encrypted storage of
SSH, TLS, and VNC secrets with scoped short-lived access tokens.

# Architecture

	create/update (plaintext in) ──► AES-256-GCM ──► storage (ciphertext)

	GetConnectionInfo(issue_token) ──► public fields + random 256-bit token
	ExchangeToken(token)           ──► plaintext (single use, 5 min TTL)

Plaintext enters the vault only on create and update. The only path that
reveals plaintext is ExchangeToken; every read API returns public fields or
ciphertext. Tokens live in an in-memory map behind a mutex and are deleted on
the first exchange attempt whether it succeeds, is expired, or is unknown.

# Encryption

AES-256-GCM with the nonce prepended to the ciphertext. The key comes from
configuration (ENCRYPTION_KEY, 32 bytes base64). Decryption failures surface
as types.ErrDecrypt; there is no plaintext fallback.

# TLS metadata

On create and update of a TLS credential the certificate PEM is parsed into
queryable public fields: CN, subject, issuer, serial, validity window, SANs
and a SHA-256 fingerprint of the DER form. A parse failure rejects the update
and leaves the existing metadata intact.

# VNC defaults

When no explicit VNC port is supplied, the port is derived as
5900 + display_number. Connection info carries the websockify URL
ws://{node_ip}:{port}/websockify.
*/
package vault
