package intake

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"csr-intake/internal/filestore"
	"csr-intake/internal/logging"
	"csr-intake/internal/requests"
)

// Options tune a Processor.
type Options struct {
	// UniqueFilenames prefixes stored attachment names with a UUID so equal
	// client names do not overwrite each other.
	UniqueFilenames bool
}

// Processor runs submissions against a request repository and an
// attachment store. It is safe for concurrent use.
type Processor struct {
	repo   requests.Repository
	files  filestore.Store
	logger *zap.Logger
	opts   Options
}

// NewProcessor wires a processor. A nil logger discards output.
func NewProcessor(repo requests.Repository, files filestore.Store, logger *zap.Logger, opts Options) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{repo: repo, files: files, logger: logger, opts: opts}
}

// run tracks one submission through its states.
type run struct {
	out Outcome
	log *zap.Logger
}

func (r *run) to(next State) {
	r.log.Debug("submission state", zap.Stringer("from", r.out.State), zap.Stringer("to", next))
	r.out.State = next
}

func (r *run) flash(c Category, text string) {
	r.out.Messages = append(r.out.Messages, Message{Category: c, Text: text})
}

func (r *run) reject(err error, text string) Outcome {
	r.to(StateRejected)
	r.out.Disposition = DispositionValidationError
	r.out.Err = err
	r.flash(CategoryError, text)
	return r.out
}

// Process runs sub to a terminal state. Every outcome carries the messages
// to show the user; errors never escape as return values.
func (p *Processor) Process(ctx context.Context, sub Submission) Outcome {
	r := &run{
		out: Outcome{State: StateReceived},
		log: logging.FromContext(ctx, p.logger),
	}

	r.to(StateValidating)
	fields, err := Validate(sub.Fields)
	if err != nil {
		r.log.Info("submission rejected", zap.Error(err))
		return r.reject(err, MsgValidation)
	}
	rec := fields.record()

	if sub.HasAttachment() {
		r.to(StateAttachmentPending)
		if !AllowedFile(sub.Attachment.Filename) {
			err := fmt.Errorf("%w: %q", ErrUnsupportedAttachment, sub.Attachment.Filename)
			r.log.Info("submission rejected", zap.Error(err))
			return r.reject(err, MsgUnsupportedAttachment())
		}

		name, size, err := p.storeAttachment(ctx, sub.Attachment)
		if err != nil {
			r.log.Warn("attachment not stored, continuing without it",
				zap.String("filename", sub.Attachment.Filename), zap.Error(err))
			r.out.AttachmentErr = err
			r.flash(CategoryError, MsgAttachmentWrite)
			r.to(StateAttachmentSkipped)
		} else {
			rec.FilePath = name
			r.out.StoredFile = name
			r.out.StoredBytes = size
			r.to(StateAttachmentStored)
		}
	} else {
		r.to(StateAttachmentSkipped)
	}

	r.to(StateCommitting)
	id, err := p.repo.InsertRequest(ctx, rec)
	if err != nil {
		return p.rollback(ctx, r, err)
	}

	r.out.RecordID = id
	r.out.Disposition = DispositionSuccess
	r.to(StateCommitted)
	r.flash(CategorySuccess, MsgSuccess)
	r.log.Info("submission committed",
		zap.Int64("id", id),
		zap.String("email", rec.Email),
		zap.String("request_type", rec.RequestType),
		zap.String("file", rec.FilePath))
	return r.out
}

// storeAttachment writes the allowed attachment under its sanitized name.
func (p *Processor) storeAttachment(ctx context.Context, att *Attachment) (string, int64, error) {
	// The prefix counts against the same length cap as the name.
	var prefix string
	if p.opts.UniqueFilenames {
		prefix = uuid.NewString() + "_"
	}
	name := prefix + secureFilename(att.Filename, maxFilenameLen-len(prefix))

	size, err := p.files.Save(ctx, name, att.Content)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %w", ErrAttachmentWrite, err)
	}
	return name, size, nil
}

// rollback undoes the attachment written for a submission whose row did not
// commit and records the storage failure.
func (p *Processor) rollback(ctx context.Context, r *run, cause error) Outcome {
	if name := r.out.StoredFile; name != "" {
		// The request context may already be done; cleanup must still run.
		if err := p.files.Remove(context.WithoutCancel(ctx), name); err != nil {
			r.log.Error("remove attachment after failed insert", zap.String("file", name), zap.Error(err))
		} else {
			r.log.Info("removed attachment after failed insert", zap.String("file", name))
		}
		r.out.StoredFile = ""
		r.out.StoredBytes = 0
	}

	r.to(StateRolledBack)
	r.out.Disposition = DispositionStorageError
	r.out.Err = cause

	if errors.Is(cause, requests.ErrConnection) {
		r.log.Error("database connection failed", zap.Error(cause))
		r.flash(CategoryError, MsgConnection)
	} else {
		r.log.Error("request insert failed", zap.Error(cause))
		r.flash(CategoryError, MsgPersistence)
	}
	return r.out
}
