// Package wallet loads Fabric X.509 identities into a gateway wallet.
package wallet

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hyperledger/fabric-sdk-go/pkg/gateway"
)

// MSPID is the membership service provider id of an org, e.g. Org1MSP.
func MSPID(orgName string) string {
	return orgName + "MSP"
}

// PopulateWallet imports the identity stored on disk under label userName.
// An identity already in the wallet is left alone.
func PopulateWallet(w *gateway.Wallet, orgName, userName, certPath, keyDir string) error {
	if w.Exists(userName) {
		return nil
	}

	cert, err := os.ReadFile(filepath.Clean(certPath))
	if err != nil {
		return fmt.Errorf("read certificate for %s: %w", userName, err)
	}

	keyPath, err := findPrivateKey(keyDir)
	if err != nil {
		return err
	}
	key, err := os.ReadFile(filepath.Clean(keyPath))
	if err != nil {
		return fmt.Errorf("read private key for %s: %w", userName, err)
	}

	return Put(w, orgName, userName, cert, key)
}

// Put stores an enrolled certificate and key under label.
func Put(w *gateway.Wallet, orgName, label string, cert, key []byte) error {
	if len(cert) == 0 || len(key) == 0 {
		return fmt.Errorf("identity %s has an empty certificate or key", label)
	}
	return w.Put(label, gateway.NewX509Identity(MSPID(orgName), string(cert), string(key)))
}

// findPrivateKey returns the first regular file in dir; the keystore of an
// enrolled msp holds exactly one.
func findPrivateKey(dir string) (string, error) {
	keyPath := ""
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			keyPath = path
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if keyPath == "" {
		return "", fmt.Errorf("no private key found in directory %s", dir)
	}
	return keyPath, nil
}
