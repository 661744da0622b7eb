package handlers

import (
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"logistics-service/internal/middleware"
	"logistics-service/internal/models"
	"logistics-service/internal/services"
)

// ImportFormat represents the file format for import
type ImportFormat string

const (
	ImportFormatCSV  ImportFormat = "csv"
	ImportFormatXLSX ImportFormat = "xlsx"
)

// ImportTemplateColumn defines a column in the import template
type ImportTemplateColumn struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
	Type        string `json:"type"`
	Example     string `json:"example"`
}

// ImportTemplate defines the structure of an import template
type ImportTemplate struct {
	Entity     string                 `json:"entity"`
	Version    string                 `json:"version"`
	Columns    []ImportTemplateColumn `json:"columns"`
	SampleData []map[string]string    `json:"sampleData,omitempty"`
}

// ImportRowError represents an error for a specific row
type ImportRowError struct {
	Row     int    `json:"row"`
	Column  string `json:"column,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ImportResult represents the result of an import operation
type ImportResult struct {
	Success      bool             `json:"success"`
	TotalRows    int              `json:"totalRows"`
	SuccessCount int              `json:"successCount"`
	FailedCount  int              `json:"failedCount"`
	Errors       []ImportRowError `json:"errors,omitempty"`
	CreatedIDs   []string         `json:"createdIds,omitempty"`
}

type ImportHandler struct {
	stock *services.StockService
	rates *services.RateService
}

func NewImportHandler(stock *services.StockService, rates *services.RateService) *ImportHandler {
	return &ImportHandler{stock: stock, rates: rates}
}

// StockImportTemplate returns the template for stock ledger records
func StockImportTemplate() ImportTemplate {
	return ImportTemplate{
		Entity:  "stock",
		Version: "1.0",
		Columns: []ImportTemplateColumn{
			{Name: "sku", Description: "Unique product SKU", Required: true, Type: "string", Example: "TEE-BLK-M"},
			{Name: "name", Description: "Product name", Required: true, Type: "string", Example: "Black T-Shirt (M)"},
			{Name: "stock", Description: "Current stock on hand", Required: true, Type: "number", Example: "25"},
			{Name: "minThreshold", Description: "Restock when stock falls to this level", Required: true, Type: "number", Example: "5"},
			{Name: "suggestedQuantity", Description: "Quantity to order when restocking", Required: false, Type: "number", Example: "50"},
			{Name: "unitCost", Description: "Purchase cost per unit", Required: false, Type: "number", Example: "450.00"},
		},
		SampleData: []map[string]string{
			{
				"sku":               "TEE-BLK-M",
				"name":              "Black T-Shirt (M)",
				"stock":             "25",
				"minThreshold":      "5",
				"suggestedQuantity": "50",
				"unitCost":          "450.00",
			},
			{
				"sku":               "MUG-CLASSIC",
				"name":              "Classic Mug",
				"stock":             "3",
				"minThreshold":      "10",
				"suggestedQuantity": "40",
				"unitCost":          "220.00",
			},
		},
	}
}

// RateRuleImportTemplate returns the template for shipping rate bands
func RateRuleImportTemplate() ImportTemplate {
	return ImportTemplate{
		Entity:  "rate_rules",
		Version: "1.0",
		Columns: []ImportTemplateColumn{
			{Name: "zoneId", Description: "Shipping zone UUID", Required: true, Type: "string", Example: "6e09cf34-1c51-4f8e-9f2d-0d2b7c3c9a11"},
			{Name: "carrierId", Description: "Carrier identifier", Required: true, Type: "string", Example: "yalidine"},
			{Name: "weightMin", Description: "Band lower bound in kg (inclusive)", Required: true, Type: "number", Example: "0"},
			{Name: "weightMax", Description: "Band upper bound in kg (exclusive)", Required: true, Type: "number", Example: "5"},
			{Name: "price", Description: "Shipping price for the band", Required: true, Type: "number", Example: "600.00"},
		},
		SampleData: []map[string]string{
			{
				"zoneId":    "6e09cf34-1c51-4f8e-9f2d-0d2b7c3c9a11",
				"carrierId": "yalidine",
				"weightMin": "0",
				"weightMax": "5",
				"price":     "600.00",
			},
			{
				"zoneId":    "6e09cf34-1c51-4f8e-9f2d-0d2b7c3c9a11",
				"carrierId": "yalidine",
				"weightMin": "5",
				"weightMax": "15",
				"price":     "950.00",
			},
		},
	}
}

// GetStockImportTemplate returns the stock import template
// GET /api/v1/stock/import/template
func (h *ImportHandler) GetStockImportTemplate(c *gin.Context) {
	format := c.DefaultQuery("format", "json")
	template := StockImportTemplate()

	switch format {
	case "csv":
		h.generateCSVTemplate(c, template, "stock")
	case "xlsx":
		h.generateXLSXTemplate(c, template, "Stock")
	default:
		c.JSON(http.StatusOK, gin.H{"success": true, "template": template})
	}
}

// GetRateRuleImportTemplate returns the rate rule import template
// GET /api/v1/shipping/rates/import/template
func (h *ImportHandler) GetRateRuleImportTemplate(c *gin.Context) {
	format := c.DefaultQuery("format", "json")
	template := RateRuleImportTemplate()

	switch format {
	case "csv":
		h.generateCSVTemplate(c, template, "rate_rules")
	case "xlsx":
		h.generateXLSXTemplate(c, template, "RateRules")
	default:
		c.JSON(http.StatusOK, gin.H{"success": true, "template": template})
	}
}

func (h *ImportHandler) generateCSVTemplate(c *gin.Context, template ImportTemplate, entity string) {
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s_import_template.csv", entity))

	writer := csv.NewWriter(c.Writer)
	defer writer.Flush()

	headers := make([]string, len(template.Columns))
	for i, col := range template.Columns {
		headers[i] = col.Name
	}
	writer.Write(headers)

	for _, sample := range template.SampleData {
		row := make([]string, len(template.Columns))
		for i, col := range template.Columns {
			row[i] = sample[col.Name]
		}
		writer.Write(row)
	}
}

func (h *ImportHandler) generateXLSXTemplate(c *gin.Context, template ImportTemplate, sheetName string) {
	f := excelize.NewFile()
	defer f.Close()

	f.SetSheetName("Sheet1", sheetName)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
	})

	requiredStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"C65911"}, Pattern: 1},
	})

	for i, col := range template.Columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		headerText := col.Name
		if col.Required {
			headerText = col.Name + " *"
		}
		f.SetCellValue(sheetName, cell, headerText)

		if col.Required {
			f.SetCellStyle(sheetName, cell, cell, requiredStyle)
		} else {
			f.SetCellStyle(sheetName, cell, cell, headerStyle)
		}

		colName, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheetName, colName, colName, 18)
	}

	for rowIdx, sample := range template.SampleData {
		for colIdx, col := range template.Columns {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			f.SetCellValue(sheetName, cell, sample[col.Name])
		}
	}

	sheetIdx, _ := f.GetSheetIndex(sheetName)
	f.SetActiveSheet(sheetIdx)

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s_import_template.xlsx", strings.ToLower(sheetName)))

	f.Write(c.Writer)
}

// ImportStock imports stock ledger records from a CSV or Excel file
// POST /api/v1/stock/import
func (h *ImportHandler) ImportStock(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Error:   models.Error{Code: "FILE_REQUIRED", Message: "Please upload a CSV or Excel file"},
		})
		return
	}
	defer file.Close()

	validateOnly := c.DefaultPostForm("validateOnly", "false") == "true"

	rows, parseErr := h.parseFile(file, header.Filename)
	if parseErr != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Error:   models.Error{Code: "PARSE_ERROR", Message: parseErr.Error()},
		})
		return
	}

	if len(rows) == 0 {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Error:   models.Error{Code: "EMPTY_FILE", Message: "The file contains no data rows"},
		})
		return
	}

	result := h.processStockRows(c, tenantID, rows, validateOnly)
	c.JSON(http.StatusOK, result)
}

// ImportRateRules imports shipping rate bands from a CSV or Excel file
// POST /api/v1/shipping/rates/import
func (h *ImportHandler) ImportRateRules(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Error:   models.Error{Code: "FILE_REQUIRED", Message: "Please upload a CSV or Excel file"},
		})
		return
	}
	defer file.Close()

	validateOnly := c.DefaultPostForm("validateOnly", "false") == "true"

	rows, parseErr := h.parseFile(file, header.Filename)
	if parseErr != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Error:   models.Error{Code: "PARSE_ERROR", Message: parseErr.Error()},
		})
		return
	}

	if len(rows) == 0 {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Error:   models.Error{Code: "EMPTY_FILE", Message: "The file contains no data rows"},
		})
		return
	}

	result := h.processRateRuleRows(c, tenantID, rows, validateOnly)
	c.JSON(http.StatusOK, result)
}

func (h *ImportHandler) parseFile(file io.Reader, filename string) ([]map[string]string, error) {
	if strings.HasSuffix(strings.ToLower(filename), ".csv") {
		return h.parseCSV(file)
	} else if strings.HasSuffix(strings.ToLower(filename), ".xlsx") {
		return h.parseXLSX(file)
	}
	return nil, fmt.Errorf("only CSV and XLSX files are supported")
}

func (h *ImportHandler) parseCSV(file io.Reader) ([]map[string]string, error) {
	reader := csv.NewReader(file)

	headers, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	for i := range headers {
		headers[i] = strings.TrimSpace(strings.ToLower(headers[i]))
		headers[i] = strings.TrimSuffix(headers[i], " *")
	}

	var rows []map[string]string
	lineNum := 1

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading line %d: %w", lineNum+1, err)
		}

		row := make(map[string]string)
		for i, value := range record {
			if i < len(headers) {
				row[headers[i]] = strings.TrimSpace(value)
			}
		}
		row["_row"] = strconv.Itoa(lineNum + 1)
		rows = append(rows, row)
		lineNum++
	}

	return rows, nil
}

func (h *ImportHandler) parseXLSX(file io.Reader) ([]map[string]string, error) {
	f, err := excelize.OpenReader(file)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets found in Excel file")
	}

	sheetName := sheets[0]
	excelRows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet: %w", err)
	}

	if len(excelRows) < 2 {
		return nil, fmt.Errorf("file must have a header row and at least one data row")
	}

	headers := excelRows[0]
	for i := range headers {
		headers[i] = strings.TrimSpace(strings.ToLower(headers[i]))
		headers[i] = strings.TrimSuffix(headers[i], " *")
	}

	var rows []map[string]string
	for rowIdx, excelRow := range excelRows[1:] {
		row := make(map[string]string)
		for i, value := range excelRow {
			if i < len(headers) {
				row[headers[i]] = strings.TrimSpace(value)
			}
		}
		row["_row"] = strconv.Itoa(rowIdx + 2)
		rows = append(rows, row)
	}

	return rows, nil
}

func requiredColumns(template ImportTemplate) map[string]bool {
	cols := make(map[string]bool)
	for _, col := range template.Columns {
		if col.Required {
			cols[strings.ToLower(col.Name)] = true
		}
	}
	return cols
}

func missingRequired(row map[string]string, required map[string]bool, result *ImportResult, rowNum int) bool {
	missing := false
	for colName := range required {
		if row[colName] == "" {
			result.Errors = append(result.Errors, ImportRowError{
				Row:     rowNum,
				Column:  colName,
				Code:    "REQUIRED_FIELD",
				Message: fmt.Sprintf("Required field '%s' is empty", colName),
			})
			missing = true
		}
	}
	return missing
}

func (h *ImportHandler) processStockRows(c *gin.Context, tenantID string, rows []map[string]string, validateOnly bool) *ImportResult {
	result := &ImportResult{
		TotalRows:  len(rows),
		Errors:     make([]ImportRowError, 0),
		CreatedIDs: make([]string, 0),
	}

	required := requiredColumns(StockImportTemplate())
	requests := make([]*models.UpsertProductStockRequest, 0, len(rows))
	requestRows := make([]int, 0, len(rows))

	for _, row := range rows {
		rowNum, _ := strconv.Atoi(row["_row"])
		if missingRequired(row, required, result, rowNum) {
			continue
		}

		stock, err := strconv.Atoi(row["stock"])
		if err != nil || stock < 0 {
			result.Errors = append(result.Errors, ImportRowError{
				Row: rowNum, Column: "stock", Code: "INVALID_NUMBER",
				Message: "stock must be a non-negative integer",
			})
			continue
		}

		threshold, err := strconv.Atoi(row["minthreshold"])
		if err != nil || threshold < 0 {
			result.Errors = append(result.Errors, ImportRowError{
				Row: rowNum, Column: "minThreshold", Code: "INVALID_NUMBER",
				Message: "minThreshold must be a non-negative integer",
			})
			continue
		}

		req := &models.UpsertProductStockRequest{
			SKU:          row["sku"],
			Name:         row["name"],
			Stock:        stock,
			MinThreshold: threshold,
		}

		if row["suggestedquantity"] != "" {
			qty, err := strconv.Atoi(row["suggestedquantity"])
			if err != nil || qty < 0 {
				result.Errors = append(result.Errors, ImportRowError{
					Row: rowNum, Column: "suggestedQuantity", Code: "INVALID_NUMBER",
					Message: "suggestedQuantity must be a non-negative integer",
				})
				continue
			}
			req.SuggestedQuantity = qty
		}

		if row["unitcost"] != "" {
			cost, err := decimal.NewFromString(row["unitcost"])
			if err != nil || cost.IsNegative() {
				result.Errors = append(result.Errors, ImportRowError{
					Row: rowNum, Column: "unitCost", Code: "INVALID_NUMBER",
					Message: "unitCost must be a non-negative number",
				})
				continue
			}
			req.UnitCost = cost
		}

		requests = append(requests, req)
		requestRows = append(requestRows, rowNum)
	}

	if validateOnly {
		result.Success = len(result.Errors) == 0
		result.SuccessCount = len(requests)
		result.FailedCount = result.TotalRows - len(requests)
		return result
	}

	for i, req := range requests {
		product, err := h.stock.UpsertProduct(c.Request.Context(), tenantID, req)
		if err != nil {
			result.Errors = append(result.Errors, ImportRowError{
				Row:     requestRows[i],
				Code:    string(services.KindOf(err)),
				Message: err.Error(),
			})
			continue
		}
		result.CreatedIDs = append(result.CreatedIDs, product.ID.String())
		result.SuccessCount++
	}

	result.FailedCount = result.TotalRows - result.SuccessCount
	result.Success = result.SuccessCount > 0
	return result
}

func (h *ImportHandler) processRateRuleRows(c *gin.Context, tenantID string, rows []map[string]string, validateOnly bool) *ImportResult {
	result := &ImportResult{
		TotalRows:  len(rows),
		Errors:     make([]ImportRowError, 0),
		CreatedIDs: make([]string, 0),
	}

	required := requiredColumns(RateRuleImportTemplate())
	requests := make([]*models.UpsertRateRuleRequest, 0, len(rows))
	requestRows := make([]int, 0, len(rows))

	for _, row := range rows {
		rowNum, _ := strconv.Atoi(row["_row"])
		if missingRequired(row, required, result, rowNum) {
			continue
		}

		zoneID, err := uuid.Parse(row["zoneid"])
		if err != nil {
			result.Errors = append(result.Errors, ImportRowError{
				Row: rowNum, Column: "zoneId", Code: "INVALID_UUID",
				Message: "zoneId must be a valid UUID",
			})
			continue
		}

		weightMin, err := strconv.ParseFloat(row["weightmin"], 64)
		if err != nil {
			result.Errors = append(result.Errors, ImportRowError{
				Row: rowNum, Column: "weightMin", Code: "INVALID_NUMBER",
				Message: "weightMin must be a number",
			})
			continue
		}

		weightMax, err := strconv.ParseFloat(row["weightmax"], 64)
		if err != nil {
			result.Errors = append(result.Errors, ImportRowError{
				Row: rowNum, Column: "weightMax", Code: "INVALID_NUMBER",
				Message: "weightMax must be a number",
			})
			continue
		}

		price, err := decimal.NewFromString(row["price"])
		if err != nil {
			result.Errors = append(result.Errors, ImportRowError{
				Row: rowNum, Column: "price", Code: "INVALID_NUMBER",
				Message: "price must be a number",
			})
			continue
		}

		requests = append(requests, &models.UpsertRateRuleRequest{
			ZoneID:    zoneID,
			CarrierID: row["carrierid"],
			WeightMin: weightMin,
			WeightMax: weightMax,
			Price:     price,
		})
		requestRows = append(requestRows, rowNum)
	}

	if validateOnly {
		result.Success = len(result.Errors) == 0
		result.SuccessCount = len(requests)
		result.FailedCount = result.TotalRows - len(requests)
		return result
	}

	for i, req := range requests {
		rule, err := h.rates.UpsertRule(c.Request.Context(), tenantID, req)
		if err != nil {
			result.Errors = append(result.Errors, ImportRowError{
				Row:     requestRows[i],
				Code:    string(services.KindOf(err)),
				Message: err.Error(),
			})
			continue
		}
		result.CreatedIDs = append(result.CreatedIDs, rule.ID.String())
		result.SuccessCount++
	}

	result.FailedCount = result.TotalRows - result.SuccessCount
	result.Success = result.SuccessCount > 0
	return result
}
