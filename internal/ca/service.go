// Package ca registers and enrolls application users with the Fabric CA so
// each account can sign ledger transactions under its own identity.
package ca

import (
	"context"
	"fmt"

	"github.com/hyperledger/fabric-sdk-go/pkg/client/msp"
	"github.com/hyperledger/fabric-sdk-go/pkg/fabsdk"
	"github.com/hyperledger/fabric-sdk-go/pkg/gateway"
	"github.com/sirupsen/logrus"

	"supply-daddy-api-server/config"
	"supply-daddy-api-server/internal/models"
	"supply-daddy-api-server/internal/wallet"
)

type Service struct {
	sdk         *fabsdk.FabricSDK
	wallet      *gateway.Wallet
	caName      string
	orgName     string
	adminUser   string
	affiliation string
	log         logrus.FieldLogger
}

// NewService acts as the registrar configured in cfg.UserName.
func NewService(sdk *fabsdk.FabricSDK, w *gateway.Wallet, cfg config.FabricConfig, log logrus.FieldLogger) *Service {
	return &Service{
		sdk:         sdk,
		wallet:      w,
		caName:      cfg.CAName,
		orgName:     cfg.OrgName,
		adminUser:   cfg.UserName,
		affiliation: cfg.CAAffiliation,
		log:         log.WithField("module", "ca"),
	}
}

func (s *Service) client() (*msp.Client, error) {
	ctxProvider := s.sdk.Context(fabsdk.WithUser(s.adminUser), fabsdk.WithOrg(s.orgName))
	mspClient, err := msp.New(ctxProvider, msp.WithCAInstance(s.caName))
	if err != nil {
		return nil, fmt.Errorf("failed to create msp client: %w", err)
	}
	return mspClient, nil
}

// Enroll registers enrollmentID with the role attribute, enrolls it and
// stores the issued identity in the wallet.
func (s *Service) Enroll(ctx context.Context, enrollmentID string, role models.Role) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	mspClient, err := s.client()
	if err != nil {
		return err
	}
	secret, err := s.register(mspClient, enrollmentID, []msp.Attribute{{Name: "role", Value: string(role), ECert: true}})
	if err != nil {
		return err
	}
	cert, key, err := s.enroll(mspClient, enrollmentID, secret)
	if err != nil {
		return err
	}
	if err := wallet.Put(s.wallet, s.orgName, enrollmentID, cert, key); err != nil {
		return fmt.Errorf("failed to save identity %s to wallet: %w", enrollmentID, err)
	}
	s.log.WithFields(logrus.Fields{"enrollment_id": enrollmentID, "role": role}).Info("fabric identity enrolled")
	return nil
}

func (s *Service) ensureAffiliation(mspClient *msp.Client, target string) error {
	affiliations, err := mspClient.GetAllAffiliations()
	if err != nil {
		return fmt.Errorf("failed to get affiliations: %w", err)
	}

	var exists func(aff msp.AffiliationInfo) bool
	exists = func(aff msp.AffiliationInfo) bool {
		if aff.Name == target {
			return true
		}
		for _, child := range aff.Affiliations {
			if exists(child) {
				return true
			}
		}
		return false
	}
	for _, aff := range affiliations.Affiliations {
		if exists(aff) {
			return nil
		}
	}

	if _, err := mspClient.AddAffiliation(&msp.AffiliationRequest{Name: target, Force: true}); err != nil {
		return fmt.Errorf("failed to add affiliation %s: %w", target, err)
	}
	s.log.WithField("affiliation", target).Info("affiliation created")
	return nil
}

func (s *Service) register(mspClient *msp.Client, enrollmentID string, attributes []msp.Attribute) (string, error) {
	if err := s.ensureAffiliation(mspClient, s.affiliation); err != nil {
		return "", err
	}
	secret, err := mspClient.Register(&msp.RegistrationRequest{
		Name:        enrollmentID,
		Type:        "client",
		Affiliation: s.affiliation,
		Attributes:  attributes,
	})
	if err != nil {
		return "", fmt.Errorf("failed to register user %s: %w", enrollmentID, err)
	}
	return secret, nil
}

func (s *Service) enroll(mspClient *msp.Client, enrollmentID, secret string) ([]byte, []byte, error) {
	if err := mspClient.Enroll(enrollmentID, msp.WithSecret(secret)); err != nil {
		return nil, nil, fmt.Errorf("failed to enroll user %s: %w", enrollmentID, err)
	}
	signingIdentity, err := mspClient.GetSigningIdentity(enrollmentID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get signing identity: %w", err)
	}
	key, err := signingIdentity.PrivateKey().Bytes()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get private key bytes: %w", err)
	}
	return signingIdentity.EnrollmentCertificate(), key, nil
}
