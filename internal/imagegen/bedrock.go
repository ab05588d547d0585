package imagegen

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/rs/zerolog/log"
)

// DefaultBedrockModel is the Stability model used when none is configured.
const DefaultBedrockModel = "stability.stable-image-ultra-v1:1"

const jsonContentType = "application/json"

// modelInvoker is the subset of the Bedrock runtime client used by BedrockProvider.
type modelInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

type bedrockRequest struct {
	Prompt string `json:"prompt"`
}

type bedrockResponse struct {
	Images        []string  `json:"images"`
	FinishReasons []*string `json:"finish_reasons"`
	Seeds         []int64   `json:"seeds"`
}

// BedrockProvider generates images with a Stability model on Amazon Bedrock.
type BedrockProvider struct {
	client  modelInvoker
	modelID string
}

// BedrockOptions configures NewBedrockProvider.
type BedrockOptions struct {
	Region    string
	ModelID   string
	AccessKey string // empty: default credential chain
	SecretKey string
	Endpoint  string // optional endpoint override
}

// NewBedrockProvider creates a Bedrock runtime client from opts.
func NewBedrockProvider(ctx context.Context, opts BedrockOptions) (*BedrockProvider, error) {
	configOpts := []func(*config.LoadOptions) error{
		config.WithRegion(opts.Region),
	}
	if opts.AccessKey != "" {
		configOpts = append(configOpts,
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")))
	}
	if opts.Endpoint != "" {
		configOpts = append(configOpts, config.WithBaseEndpoint(opts.Endpoint))
	}

	cfg, err := config.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	modelID := opts.ModelID
	if modelID == "" {
		modelID = DefaultBedrockModel
	}

	log.Info().
		Str("region", opts.Region).
		Str("model", modelID).
		Str("endpoint", opts.Endpoint).
		Msg("Bedrock image provider initialized")

	return newBedrockProvider(bedrockruntime.NewFromConfig(cfg), modelID), nil
}

func newBedrockProvider(client modelInvoker, modelID string) *BedrockProvider {
	return &BedrockProvider{client: client, modelID: modelID}
}

// GenerateImage invokes the model with {"prompt": prompt} and returns the first image of the response.
func (p *BedrockProvider) GenerateImage(ctx context.Context, prompt string) (*RawImage, error) {
	body, err := json.Marshal(bedrockRequest{Prompt: prompt})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal bedrock request: %w", err)
	}

	out, err := p.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		Body:        body,
		ModelId:     aws.String(p.modelID),
		Accept:      aws.String(jsonContentType),
		ContentType: aws.String(jsonContentType),
	})
	if err != nil {
		return nil, fmt.Errorf("bedrock invoke model: %w", err)
	}

	var resp bedrockResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse bedrock response: %w", err)
	}
	if len(resp.Images) == 0 || resp.Images[0] == "" {
		return nil, errors.New("no image in bedrock response")
	}
	if len(resp.FinishReasons) > 0 && resp.FinishReasons[0] != nil {
		return nil, fmt.Errorf("bedrock refused the prompt: %s", *resp.FinishReasons[0])
	}

	data, err := base64.StdEncoding.DecodeString(resp.Images[0])
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 image: %w", err)
	}

	contentType := jsonContentType
	if out.ContentType != nil {
		contentType = *out.ContentType
	}
	log.Info().
		Str("caller", "GenerateImage").
		Str("model", p.modelID).
		Str("response_content_type", contentType).
		Int("images", len(resp.Images)).
		Int("image_size_bytes", len(data)).
		Msg("Bedrock response (image)")

	return &RawImage{Data: data, MimeType: http.DetectContentType(data), Model: p.modelID}, nil
}
