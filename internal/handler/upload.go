package handler

import (
	"net/http"

	"github.com/Munezachristian/explore-kigali-hub-sub001/internal/media"
)

// maxUploadForm ограничивает размер формы с несколькими файлами.
const maxUploadForm = 8 * media.MaxFileSize

type uploadResponse struct {
	URLs []string `json:"urls"`
}

// Upload возвращает обработчик, загружающий файлы поля files в бакет.
// Ошибка любого файла отменяет всю загрузку.
func (h *Handler) Upload(bucket media.Bucket) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadForm)
		if err := r.ParseMultipartForm(media.MaxFileSize); err != nil {
			badRequest(w, "invalid multipart form")
			return
		}

		headers := r.MultipartForm.File["files"]
		if len(headers) == 0 {
			badRequest(w, "no files provided")
			return
		}

		files := make([]media.File, 0, len(headers))
		for _, fh := range headers {
			f, err := media.ReadMultipart(fh)
			if err != nil {
				h.fail(w, "upload", err)
				return
			}
			files = append(files, f)
		}

		urls, err := h.media.UploadAll(r.Context(), bucket, files)
		if err != nil {
			h.fail(w, "upload", err)
			return
		}
		writeData(w, http.StatusCreated, uploadResponse{URLs: urls})
	}
}
