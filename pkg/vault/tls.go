package vault

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"

	"github.com/autobot/fleet/pkg/types"
)

// ParseCertificatePEM extracts queryable metadata from a PEM-encoded server
// certificate. The first CERTIFICATE block is treated as the leaf.
func ParseCertificatePEM(certPEM []byte) (*types.TLSInfo, error) {
	block := findCertificateBlock(certPEM)
	if block == nil {
		return nil, fmt.Errorf("no CERTIFICATE block in PEM data: %w", types.ErrValidation)
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", types.ErrValidation)
	}

	fingerprint := sha256.Sum256(cert.Raw)

	info := &types.TLSInfo{
		CommonName:  cert.Subject.CommonName,
		Subject:     cert.Subject.String(),
		Issuer:      cert.Issuer.String(),
		Serial:      cert.SerialNumber.String(),
		NotBefore:   cert.NotBefore,
		NotAfter:    cert.NotAfter,
		DNSNames:    cert.DNSNames,
		Fingerprint: hex.EncodeToString(fingerprint[:]),
	}

	for _, ip := range cert.IPAddresses {
		info.IPAddresses = append(info.IPAddresses, ip.String())
	}

	return info, nil
}

// findCertificateBlock walks the PEM chain and returns the first certificate
// block, skipping any leading key or parameter blocks.
func findCertificateBlock(data []byte) *pem.Block {
	for len(data) > 0 {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			return nil
		}
		if block.Type == "CERTIFICATE" {
			return block
		}
	}
	return nil
}
