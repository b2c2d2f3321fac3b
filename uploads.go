package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/shopledger_backend/utils"
	"github.com/mmdatafocus/shopledger_backend/workflow"
	"github.com/sirupsen/logrus"
)

const maxUploadSizeBytes int64 = 5 * 1024 * 1024

var importMimeTypes = map[string]bool{
	"text/csv":                 true,
	"text/plain":               true,
	"application/csv":          true,
	"application/vnd.ms-excel": true,
	utils.ContentTypeXlsx:      true,
	"application/octet-stream": true,
}

type importUploadResponse struct {
	Kind     workflow.ImportKind    `json:"kind"`
	Imported int                    `json:"imported"`
	Headers  []string               `json:"headers"`
	Result   *workflow.ImportResult `json:"result"`
}

// importUpload takes a multipart form with the spreadsheet in "file", the entity in
// "kind", an optional JSON "mapping" of column header to field and, for workbooks, an
// optional "sheet". Without a mapping every header is taken to be the field name.
func (a *ledgerAPI) importUpload(c *gin.Context) {
	requestID := requestIDFromHeaders(c)

	kind, err := workflow.ParseImportKind(c.PostForm("kind"))
	if err != nil {
		a.fail(c, "importUpload", err)
		return
	}
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	if header.Size > maxUploadSizeBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file size exceeds 5MB limit"})
		return
	}
	mimeType := header.Header.Get("Content-Type")
	if mimeType != "" && !importMimeTypes[strings.Split(mimeType, ";")[0]] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported file type"})
		return
	}

	file, err := header.Open()
	if err != nil {
		logUploadError(a.logger, err, "multipart", requestID)
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read file"})
		return
	}
	defer file.Close()

	var (
		rows    []map[string]string
		headers []string
	)
	switch strings.ToLower(filepath.Ext(header.Filename)) {
	case ".xlsx", ".xlsm":
		rows, headers, err = workflow.ReadXlsxRows(file, c.PostForm("sheet"))
	case ".csv", ".txt", "":
		rows, headers, err = workflow.ReadCsvRows(file)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "file extension must be .csv or .xlsx"})
		return
	}
	if err != nil {
		a.fail(c, "importUpload", err)
		return
	}

	mapping := map[string]string{}
	if raw := strings.TrimSpace(c.PostForm("mapping")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &mapping); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "mapping must be a JSON object of header to field"})
			return
		}
	} else {
		for _, h := range headers {
			mapping[h] = h
		}
	}

	ctx := utils.SetSourceInContext(c.Request.Context(), "import")
	result, err := a.svc.ImportRows(ctx, kind, rows, mapping)
	if err != nil {
		a.fail(c, "importUpload", err)
		return
	}

	a.logger.WithFields(logrus.Fields{
		"kind":       kind,
		"file_name":  header.Filename,
		"rows":       result.Count(),
		"request_id": requestID,
	}).Info("[import.complete]")

	c.JSON(http.StatusOK, gin.H{"data": importUploadResponse{
		Kind:     kind,
		Imported: result.Count(),
		Headers:  headers,
		Result:   result,
	}})
}

// exportBackup streams the ledger as JSON. With ?upload=true the document is copied to
// GCS_BUCKET instead and the object URI is returned.
func (a *ledgerAPI) exportBackup(c *gin.Context) {
	var buf bytes.Buffer
	if err := a.svc.ExportBackup(c.Request.Context(), &buf); err != nil {
		a.fail(c, "exportBackup", err)
		return
	}
	name := fmt.Sprintf("shopledger-backup-%s.json", time.Now().UTC().Format("20060102-150405"))
	a.sendExport(c, name, utils.ContentTypeJSON, buf.Bytes())
}

func (a *ledgerAPI) exportBalances(c *gin.Context) {
	var buf bytes.Buffer
	if err := a.svc.ExportBalancesXlsx(c.Request.Context(), &buf); err != nil {
		a.fail(c, "exportBalances", err)
		return
	}
	name := fmt.Sprintf("shopledger-balances-%s.xlsx", time.Now().UTC().Format("20060102-150405"))
	a.sendExport(c, name, utils.ContentTypeXlsx, buf.Bytes())
}

func (a *ledgerAPI) sendExport(c *gin.Context, name, contentType string, data []byte) {
	if strings.EqualFold(c.Query("upload"), "true") {
		uri, err := utils.UploadToGCS(c.Request.Context(), "exports/"+name, data, contentType)
		if err != nil {
			logUploadError(a.logger, err, "gcs", requestIDFromHeaders(c))
			c.JSON(http.StatusBadGateway, gin.H{"error": "upload failed: " + err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": gin.H{"uri": uri, "size": len(data)}})
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, contentType, data)
}

// importBackup replaces the whole ledger with the uploaded backup document, sent either
// as the raw request body or as multipart "file".
func (a *ledgerAPI) importBackup(c *gin.Context) {
	var body io.Reader = http.MaxBytesReader(c.Writer, c.Request.Body, 64*maxUploadSizeBytes)
	if header, err := c.FormFile("file"); err == nil {
		file, err := header.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "could not read file"})
			return
		}
		defer file.Close()
		body = file
	}
	snapshot, err := a.svc.ImportBackup(c.Request.Context(), body)
	if err != nil {
		a.fail(c, "importBackup", err)
		return
	}
	a.logger.WithFields(logrus.Fields{
		"customers":    len(snapshot.Customers),
		"transactions": len(snapshot.Transactions),
		"orders":       len(snapshot.BreadOrders),
		"request_id":   requestIDFromHeaders(c),
	}).Warn("[backup.restored]")
	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"customers":    len(snapshot.Customers),
		"suppliers":    len(snapshot.Suppliers),
		"products":     len(snapshot.Products),
		"transactions": len(snapshot.Transactions),
		"orders":       len(snapshot.BreadOrders),
		"sales":        len(snapshot.Sales),
	}})
}

func logUploadError(logger *logrus.Logger, err error, provider string, requestID string) {
	logger.WithFields(logrus.Fields{
		"error":      err.Error(),
		"provider":   provider,
		"request_id": requestID,
	}).Error("[upload.error]")
}

func requestIDFromHeaders(c *gin.Context) string {
	if id := strings.TrimSpace(c.GetHeader("X-Correlation-Id")); id != "" {
		return id
	}
	if id := strings.TrimSpace(c.GetHeader("X-Request-Id")); id != "" {
		return id
	}
	return fmt.Sprintf("upload-%d", time.Now().UnixNano())
}
