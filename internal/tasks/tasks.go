package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"log"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/hibiken/asynq"
	"github.com/nfnt/resize"
	"github.com/redis/go-redis/v9"

	"github.com/isaacparker671/rentago-demo/internal/config"
	"github.com/isaacparker671/rentago-demo/internal/email"
	"github.com/isaacparker671/rentago-demo/internal/models"
	"github.com/isaacparker671/rentago-demo/internal/services"
	"github.com/isaacparker671/rentago-demo/internal/utils"
)

// Task types handled by the background workers.
const (
	TypeEmailNotify  = "email:notify"
	TypeImageProcess = "image:process"
)

// --- Task Client (Enqueuing tasks) ---

func NewClient(rdb *redis.Client) *asynq.Client {
	clientOpt := asynq.RedisClientOpt{
		Addr: rdb.Options().Addr,
	}
	return asynq.NewClient(clientOpt)
}

// --- Task Server (Processing tasks) ---

// TaskProcessor handles the processing of tasks.
// It holds dependencies needed by task handlers.
type TaskProcessor struct {
	cfg         *config.Config
	emailSender email.Sender
	itemService services.IItemService
	userService services.IUserService
	s3Client    *s3.Client
	taskClient  *asynq.Client
}

func NewTaskProcessor(
	cfg *config.Config,
	emailSender email.Sender,
	itemService services.IItemService,
	userService services.IUserService,
	s3Client *s3.Client,
	taskClient *asynq.Client,
) *TaskProcessor {
	return &TaskProcessor{
		cfg:         cfg,
		emailSender: emailSender,
		itemService: itemService,
		userService: userService,
		s3Client:    s3Client,
		taskClient:  taskClient,
	}
}

// SetupServer configures and returns an Asynq server instance.
func SetupServer(rdb *redis.Client, processor *TaskProcessor, isImageWorker bool, isBgWorker bool) *asynq.Server {
	serverOpt := asynq.RedisClientOpt{
		Addr: rdb.Options().Addr,
	}

	srv := asynq.NewServer(
		serverOpt,
		asynq.Config{
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
				"images":   5,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				fmt.Printf("[Asynq Error] Task Type: %s, Payload: %s, Error: %v\n", task.Type(), string(task.Payload()), err)
			}),
		},
	)

	mux := asynq.NewServeMux()

	if isBgWorker {
		mux.HandleFunc(TypeEmailNotify, processor.HandleEmailNotifyTask)
		fmt.Println("Registered background task handlers.")
	}

	if isImageWorker {
		mux.HandleFunc(TypeImageProcess, processor.HandleImageProcessTask)
		fmt.Println("Registered image processing task handlers.")
	}

	if !isBgWorker && !isImageWorker {
		fmt.Println("Running in API mode, no task server started.")
		return nil
	}

	if err := srv.Start(mux); err != nil {
		log.Fatalf("Could not start Asynq server: %v", err)
	}

	return srv
}

// --- Task Handlers ---

// EmailNotifyPayload carries a transaction lifecycle event to the email worker.
type EmailNotifyPayload struct {
	Event         string `json:"event"`
	RecipientID   string `json:"recipient_id"`
	TransactionID string `json:"transaction_id"`
	ItemTitle     string `json:"item_title"`
	ListingType   string `json:"listing_type"`
}

// subjectFor maps a lifecycle event to an email subject line.
func subjectFor(event services.TransactionEvent, itemTitle string) string {
	switch event {
	case services.EventRequested:
		return fmt.Sprintf("New request for \"%s\"", itemTitle)
	case services.EventAccepted:
		return fmt.Sprintf("Your request for \"%s\" was accepted", itemTitle)
	case services.EventDenied:
		return fmt.Sprintf("Your request for \"%s\" was denied", itemTitle)
	case services.EventCancelled:
		return fmt.Sprintf("The request for \"%s\" was cancelled", itemTitle)
	case services.EventCompleted:
		return fmt.Sprintf("Your transaction for \"%s\" is complete", itemTitle)
	}
	return fmt.Sprintf("Update on \"%s\"", itemTitle)
}

// bodyFor renders a plain-text body for a lifecycle event.
func bodyFor(event services.TransactionEvent, itemTitle, listingType string) string {
	verb := "buy"
	if listingType == string(models.ListingTypeRent) {
		verb = "rent"
	}
	switch event {
	case services.EventRequested:
		return fmt.Sprintf("Someone wants to %s your item \"%s\". Open the conversation to accept or deny the request.", verb, itemTitle)
	case services.EventAccepted:
		return fmt.Sprintf("Good news! The owner accepted your request to %s \"%s\".", verb, itemTitle)
	case services.EventDenied:
		return fmt.Sprintf("The owner denied your request to %s \"%s\". The item is available again.", verb, itemTitle)
	case services.EventCancelled:
		return fmt.Sprintf("The buyer cancelled the accepted request for \"%s\". The item is available again.", itemTitle)
	case services.EventCompleted:
		return fmt.Sprintf("The transaction for \"%s\" is complete. You can now leave a review.", itemTitle)
	}
	return fmt.Sprintf("There is an update on the transaction for \"%s\".", itemTitle)
}

// HandleEmailNotifyTask resolves the recipient and delivers a lifecycle email.
// Recipients who disabled the relevant notification preference are skipped.
func (p *TaskProcessor) HandleEmailNotifyTask(ctx context.Context, t *asynq.Task) error {
	var payload EmailNotifyPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal email notify payload: %v: %w", err, asynq.SkipRetry)
	}

	recipientID, err := utils.ParseSixID(payload.RecipientID)
	if err != nil {
		log.Printf("Invalid RecipientID in email notify payload: %s", payload.RecipientID)
		return fmt.Errorf("invalid recipient ID in payload: %w", asynq.SkipRetry)
	}

	recipient, err := p.userService.FindByID(ctx, recipientID)
	if err != nil {
		log.Printf("Error fetching recipient %s for email notify: %v", payload.RecipientID, err)
		if strings.Contains(err.Error(), "not found") {
			return fmt.Errorf("recipient not found: %w", asynq.SkipRetry)
		}
		return err
	}

	event := services.TransactionEvent(payload.Event)
	wants := recipient.WantsEmail(func(np models.NotificationPreferences) bool {
		if event == services.EventRequested {
			return np.TransactionRequest
		}
		return np.TransactionUpdate
	})
	if !wants {
		log.Printf("Recipient %s opted out of %s emails, skipping.", payload.RecipientID, payload.Event)
		return nil
	}

	subject := subjectFor(event, payload.ItemTitle)
	body := bodyFor(event, payload.ItemTitle, payload.ListingType)

	fromAddress := p.cfg.SmtpFromAddress
	if fromAddress == "" {
		fromAddress = "noreply@example.com"
		log.Printf("Warning: SmtpFromAddress not configured, using fallback %s for email to %s", fromAddress, recipient.Email)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("To: %s\r\n", recipient.Email))
	sb.WriteString(fmt.Sprintf("From: %s\r\n", fromAddress))
	sb.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	sb.WriteString("Date: " + time.Now().Format(time.RFC1123Z) + "\r\n")
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(body)
	sb.WriteString("\r\n")

	if err := p.emailSender.Send(ctx, []string{recipient.Email}, subject, []byte(sb.String())); err != nil {
		fmt.Printf("Email sending failed (will retry?): %v\n", err)
		return err
	}

	log.Printf("Email notify task processed: To=%s, Event=%s", recipient.Email, payload.Event)
	return nil
}

// ImageTaskPayload identifies an uploaded item photo to normalize.
type ImageTaskPayload struct {
	S3Key  string `json:"s3_key"`
	ItemID string `json:"item_id"`
}

func (p *TaskProcessor) HandleImageProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload ImageTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal image task payload: %v: %w", err, asynq.SkipRetry)
	}

	itemID, err := utils.ParseSixID(payload.ItemID)
	if err != nil {
		log.Printf("Invalid ItemID in image task payload: %s", payload.ItemID)
		return fmt.Errorf("invalid item ID in payload: %w", asynq.SkipRetry)
	}

	log.Printf("Processing image task: S3Key=%s, ItemID=%s\n", payload.S3Key, payload.ItemID)

	// 1. Download image from S3
	getObjectOutput, err := p.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.cfg.AwsS3Bucket),
		Key:    aws.String(payload.S3Key),
	})
	if err != nil {
		log.Printf("Error getting object %s from S3: %v", payload.S3Key, err)
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			log.Printf("S3 object %s not found, likely upload failed or key incorrect.", payload.S3Key)
			return fmt.Errorf("s3 object not found: %w", asynq.SkipRetry)
		}
		return fmt.Errorf("failed to download image from S3: %w", err)
	}
	defer getObjectOutput.Body.Close()

	imgData, err := io.ReadAll(getObjectOutput.Body)
	if err != nil {
		log.Printf("Error reading image object body for key %s: %v", payload.S3Key, err)
		return fmt.Errorf("failed to read image data: %w", err)
	}

	// Check initial size before decoding
	maxSizeBytes := int64(p.cfg.ImageMaxSizeMB) * 1024 * 1024
	if int64(len(imgData)) > maxSizeBytes {
		log.Printf("Image %s exceeds max size (%d > %d bytes). Skipping.", payload.S3Key, len(imgData), maxSizeBytes)
		return fmt.Errorf("image exceeds max size: %w", asynq.SkipRetry)
	}

	img, format, err := image.Decode(bytes.NewReader(imgData))
	if err != nil {
		log.Printf("Error decoding image for key %s: %v", payload.S3Key, err)
		return fmt.Errorf("unsupported image format or corrupt image: %w", asynq.SkipRetry)
	}
	log.Printf("Decoded image %s, format: %s, size: %dx%d", payload.S3Key, format, img.Bounds().Dx(), img.Bounds().Dy())

	// 2. Check dimensions
	maxWidth := uint(p.cfg.ImageMaxDimension)
	maxHeight := uint(p.cfg.ImageMaxDimension)
	needsResize := uint(img.Bounds().Dx()) > maxWidth || uint(img.Bounds().Dy()) > maxHeight

	processedImageKey := payload.S3Key
	var processedImageData []byte
	contentType := aws.ToString(getObjectOutput.ContentType)

	// 3. Resize if needed
	if needsResize {
		log.Printf("Resizing image %s (original: %dx%d, max: %dx%d)", payload.S3Key, img.Bounds().Dx(), img.Bounds().Dy(), maxWidth, maxHeight)
		resizedImg := resize.Thumbnail(maxWidth, maxHeight, img, resize.Lanczos3)
		var buf bytes.Buffer
		err = jpeg.Encode(&buf, resizedImg, &jpeg.Options{Quality: 85})
		if err != nil {
			log.Printf("Error encoding resized image %s: %v", payload.S3Key, err)
			return fmt.Errorf("failed to re-encode resized image: %w", err)
		}
		processedImageData = buf.Bytes()
		contentType = "image/jpeg"
		log.Printf("Resized image %s to %dx%d", payload.S3Key, resizedImg.Bounds().Dx(), resizedImg.Bounds().Dy())

		if int64(len(processedImageData)) > maxSizeBytes {
			log.Printf("Resized image %s still exceeds max size (%d > %d bytes). Skipping.", payload.S3Key, len(processedImageData), maxSizeBytes)
			return fmt.Errorf("resized image still exceeds max size: %w", asynq.SkipRetry)
		}
	} else {
		processedImageData = imgData
	}

	// 4. Upload processed image (overwrite original)
	_, err = p.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.cfg.AwsS3Bucket),
		Key:         aws.String(processedImageKey),
		Body:        bytes.NewReader(processedImageData),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		log.Printf("Error uploading processed image %s to S3: %v", processedImageKey, err)
		return fmt.Errorf("failed to upload processed image: %w", err)
	}

	// 5. Attach to the item document
	err = p.itemService.AddImageToItem(ctx, itemID, processedImageKey)
	if err != nil {
		log.Printf("Error adding image key %s to item %s: %v", processedImageKey, payload.ItemID, err)
		return fmt.Errorf("failed to update item with processed image: %w", err)
	}

	log.Printf("Image task processed successfully: Key=%s, ItemID=%s", processedImageKey, payload.ItemID)
	return nil
}
