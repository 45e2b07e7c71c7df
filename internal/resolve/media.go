package resolve

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"os"

	narrataerrors "narrata/internal/errors"
	"narrata/internal/llm"
	"narrata/internal/narrative"
)

// resolveMedia reads a media input's bytes from whichever source it names
// and wraps them as an llm.MediaPart. Identity otherwise: the MIME type
// travels through unchanged. The input's filename is not carried into the
// MediaPart.
func (r *Resolver) resolveMedia(ctx context.Context, input narrative.Input) (Resolved, error) {
	data, err := r.fetchMediaBytes(ctx, input.Source)
	if err != nil {
		return Resolved{}, err
	}
	return Resolved{Media: &llm.MediaPart{MIMEType: input.MIMEType, Data: data}}, nil
}

func (r *Resolver) fetchMediaBytes(ctx context.Context, src narrative.MediaSource) ([]byte, error) {
	switch src.Kind {
	case narrative.MediaSourceBuffer:
		return src.Buffer, nil
	case narrative.MediaSourceBase64:
		data, err := base64.StdEncoding.DecodeString(src.Base64)
		if err != nil {
			return nil, narrataerrors.Wrap(narrataerrors.KindInputResolution, narrataerrors.ReasonInvalidQuery, err)
		}
		return data, nil
	case narrative.MediaSourceFile:
		data, err := os.ReadFile(src.Path)
		if err != nil {
			return nil, narrataerrors.Wrap(narrataerrors.KindInputResolution, narrataerrors.ReasonNotFound, err)
		}
		return data, nil
	case narrative.MediaSourceURL:
		return r.fetchMediaURL(ctx, src.URL)
	default:
		return nil, narrataerrors.New(narrataerrors.KindInputResolution, narrataerrors.ReasonFeatureUnsupported, "unknown media source kind: "+string(src.Kind))
	}
}

func (r *Resolver) fetchMediaURL(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, narrataerrors.Wrap(narrataerrors.KindInputResolution, narrataerrors.ReasonInvalidQuery, err)
	}
	resp, err := r.HTTP.Do(req)
	if err != nil {
		return nil, narrataerrors.Wrap(narrataerrors.KindInputResolution, narrataerrors.ReasonConnection, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, narrataerrors.New(narrataerrors.KindInputResolution, narrataerrors.ReasonConnection, fmt.Sprintf("media fetch %s: status %d", rawURL, resp.StatusCode))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, narrataerrors.Wrap(narrataerrors.KindInputResolution, narrataerrors.ReasonConnection, err)
	}
	return data, nil
}
