package reconcile

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// SESAPI is the slice of the SES v2 client the notifier calls.
type SESAPI interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESNotifier mails reports through Amazon SES.
type SESNotifier struct {
	Client SESAPI
	From   string
	To     string
}

func NewSESNotifier(ctx context.Context, region, from, to string) (*SESNotifier, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("reconcile: load aws config: %w", err)
	}
	return &SESNotifier{Client: sesv2.NewFromConfig(awsCfg), From: from, To: to}, nil
}

func (n *SESNotifier) Notify(ctx context.Context, r *Report) error {
	subject := fmt.Sprintf("%d vending orders dispensed without acknowledgment", len(r.Orders))
	_, err := n.Client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(n.From),
		Destination:      &types.Destination{ToAddresses: []string{n.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject)},
				Body:    &types.Body{Text: &types.Content{Data: aws.String(r.String())}},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("reconcile: send email: %w", err)
	}
	return nil
}
