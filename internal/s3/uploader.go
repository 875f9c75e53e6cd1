// server/internal/s3/uploader.go
package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"supply-daddy-api-server/config"
)

// PutObjectAPI is the slice of the S3 client the uploader needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type Uploader struct {
	Client           PutObjectAPI
	Bucket           string
	Region           string
	CloudFrontDomain string
}

func NewUploader(ctx context.Context, cfg config.S3Config) (*Uploader, error) {
	sdkConfig, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &Uploader{
		Client:           s3.NewFromConfig(sdkConfig),
		Bucket:           cfg.Bucket,
		Region:           cfg.Region,
		CloudFrontDomain: cfg.CloudFrontDomain,
	}, nil
}

// UploadFile uploads body to S3 and returns its public URL.
func (u *Uploader) UploadFile(ctx context.Context, body io.Reader, objectKey, contentType string) (string, error) {
	_, err := u.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.Bucket),
		Key:         aws.String(objectKey),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload file to S3: %w", err)
	}
	return u.ObjectURL(objectKey), nil
}

// ObjectURL prefers the CloudFront domain and falls back to the bucket URL.
func (u *Uploader) ObjectURL(objectKey string) string {
	if u.CloudFrontDomain != "" {
		return fmt.Sprintf("https://%s/%s", u.CloudFrontDomain, objectKey)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", u.Bucket, u.Region, objectKey)
}

type documentBundle struct {
	ShipmentID  string    `json:"shipment_id"`
	POText      string    `json:"po_text"`
	InvoiceText string    `json:"invoice_text"`
	BOLText     string    `json:"bol_text"`
	DocHash     string    `json:"doc_hash"`
	ArchivedAt  time.Time `json:"archived_at"`
}

// ArchiveDocuments stores a snapshot of a shipment's document texts. Each
// call writes a new object so earlier versions stay available.
func (u *Uploader) ArchiveDocuments(ctx context.Context, shipmentID, poText, invoiceText, bolText, docHash string) (string, error) {
	now := time.Now().UTC()
	body, err := json.Marshal(documentBundle{
		ShipmentID:  shipmentID,
		POText:      poText,
		InvoiceText: invoiceText,
		BOLText:     bolText,
		DocHash:     docHash,
		ArchivedAt:  now,
	})
	if err != nil {
		return "", err
	}
	key := fmt.Sprintf("shipments/%s/documents-%d.json", shipmentID, now.UnixMilli())
	return u.UploadFile(ctx, bytes.NewReader(body), key, "application/json")
}
