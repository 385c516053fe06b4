/*
Copyright (C) 2025 [GrainArc]

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU Affero General Public License as published
by the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU Affero General Public License for more details.

You should have received a copy of the GNU Affero General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package Georef

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-sqlite3"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

const (
	gpkgApplicationID = 0x47504B47 // "GPKG"
	gpkgUserVersion   = 10200
	// gpkgCustomSRSID 没有EPSG代码的自定义坐标系使用的srs_id
	gpkgCustomSRSID = 100000
)

// gpkgSpatialRefSys gpkg_spatial_ref_sys 表
type gpkgSpatialRefSys struct {
	SrsName                string  `gorm:"column:srs_name"`
	SrsID                  int     `gorm:"column:srs_id;primaryKey"`
	Organization           string  `gorm:"column:organization"`
	OrganizationCoordsysID int     `gorm:"column:organization_coordsys_id"`
	Definition             string  `gorm:"column:definition"`
	Description            *string `gorm:"column:description"`
}

func (gpkgSpatialRefSys) TableName() string { return "gpkg_spatial_ref_sys" }

// gpkgContents gpkg_contents 表
type gpkgContents struct {
	Table       string   `gorm:"column:table_name;primaryKey"`
	DataType    string   `gorm:"column:data_type"`
	Identifier  *string  `gorm:"column:identifier"`
	Description *string  `gorm:"column:description"`
	MinX        *float64 `gorm:"column:min_x"`
	MinY        *float64 `gorm:"column:min_y"`
	MaxX        *float64 `gorm:"column:max_x"`
	MaxY        *float64 `gorm:"column:max_y"`
	SrsID       *int     `gorm:"column:srs_id"`
}

func (gpkgContents) TableName() string { return "gpkg_contents" }

// gpkgGeometryColumns gpkg_geometry_columns 表
type gpkgGeometryColumns struct {
	Table            string `gorm:"column:table_name;primaryKey"`
	ColumnName       string `gorm:"column:column_name;primaryKey"`
	GeometryTypeName string `gorm:"column:geometry_type_name"`
	SrsID            int    `gorm:"column:srs_id"`
	Z                int    `gorm:"column:z"`
	M                int    `gorm:"column:m"`
}

func (gpkgGeometryColumns) TableName() string { return "gpkg_geometry_columns" }

// GeoPackage核心表结构
var gpkgSchemas = []string{
	`CREATE TABLE IF NOT EXISTS gpkg_spatial_ref_sys (
		srs_name TEXT NOT NULL,
		srs_id INTEGER NOT NULL PRIMARY KEY,
		organization TEXT NOT NULL,
		organization_coordsys_id INTEGER NOT NULL,
		definition TEXT NOT NULL,
		description TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS gpkg_contents (
		table_name TEXT NOT NULL PRIMARY KEY,
		data_type TEXT NOT NULL,
		identifier TEXT UNIQUE,
		description TEXT DEFAULT '',
		last_change DATETIME NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
		min_x DOUBLE,
		min_y DOUBLE,
		max_x DOUBLE,
		max_y DOUBLE,
		srs_id INTEGER,
		CONSTRAINT fk_gc_r_srs_id FOREIGN KEY (srs_id) REFERENCES gpkg_spatial_ref_sys(srs_id)
	)`,
	`CREATE TABLE IF NOT EXISTS gpkg_geometry_columns (
		table_name TEXT NOT NULL,
		column_name TEXT NOT NULL,
		geometry_type_name TEXT NOT NULL,
		srs_id INTEGER NOT NULL,
		z TINYINT NOT NULL,
		m TINYINT NOT NULL,
		CONSTRAINT pk_geom_cols PRIMARY KEY (table_name, column_name),
		CONSTRAINT uk_gc_table_name UNIQUE (table_name),
		CONSTRAINT fk_gc_tn FOREIGN KEY (table_name) REFERENCES gpkg_contents(table_name),
		CONSTRAINT fk_gc_srs FOREIGN KEY (srs_id) REFERENCES gpkg_spatial_ref_sys (srs_id)
	)`,
}

// GeoPackage规范要求必须存在的三条坐标系记录
var gpkgRequiredSRS = []gpkgSpatialRefSys{
	{SrsName: "Undefined cartesian SRS", SrsID: -1, Organization: "NONE", OrganizationCoordsysID: -1, Definition: UndefinedDefinition},
	{SrsName: "Undefined geographic SRS", SrsID: 0, Organization: "NONE", OrganizationCoordsysID: 0, Definition: UndefinedDefinition},
	{SrsName: SRS_WGS84.Name, SrsID: 4326, Organization: "EPSG", OrganizationCoordsysID: 4326, Definition: SRS_WGS84.WKT},
}

// quoteIdent 转义SQL标识符
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// openGeoPackage 打开GeoPackage，只读模式下文件必须存在
func openGeoPackage(path string, readOnly bool) (*gorm.DB, error) {
	dsn := path
	if readOnly {
		dsn = "file:" + path + "?mode=ro"
	}
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 gormlogger.Discard,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, classifySQLiteError(err, "无法打开GeoPackage: %s", path)
	}
	return gdb, nil
}

func closeGeoPackage(gdb *gorm.DB) {
	if db, err := gdb.DB(); err == nil {
		db.Close()
	}
}

// classifySQLiteError 将SQLite错误归类为 ErrNotFound 或 ErrFormat
func classifySQLiteError(err error, msgFmt string, args ...any) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrCantOpen {
		return Wrap(ErrNotFound, err, msgFmt, args...)
	}
	return Wrap(ErrFormat, err, msgFmt, args...)
}

// ListGeoPackageLayers 列出GeoPackage中的矢量图层
func ListGeoPackageLayers(ctx context.Context, path string) ([]string, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, Wrap(ErrNotFound, err, "文件不存在: %s", path)
	}
	gdb, err := openGeoPackage(path, true)
	if err != nil {
		return nil, err
	}
	defer closeGeoPackage(gdb)

	var contents []gpkgContents
	err = gdb.WithContext(ctx).Where("data_type = ?", "features").Order("table_name").Find(&contents).Error
	if err != nil {
		return nil, classifySQLiteError(err, "读取gpkg_contents失败: %s", path)
	}
	names := make([]string, len(contents))
	for i, c := range contents {
		names[i] = c.Table
	}
	return names, nil
}

// ReadGeoPackageLayer 读取GeoPackage中的矢量图层，要素按FID排序
func ReadGeoPackageLayer(ctx context.Context, path, layerName string) (*VectorLayer, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, Wrap(ErrNotFound, err, "文件不存在: %s", path)
		}
		return nil, Wrap(ErrFormat, err, "无法访问文件: %s", path)
	}

	gdb, err := openGeoPackage(path, true)
	if err != nil {
		return nil, err
	}
	defer closeGeoPackage(gdb)
	gdb = gdb.WithContext(ctx)

	var contents gpkgContents
	err = gdb.Where("lower(table_name) = lower(?)", layerName).First(&contents).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, With(ErrNotFound, "图层不存在: %s (%s)", layerName, path)
	}
	if err != nil {
		return nil, classifySQLiteError(err, "不是有效的GeoPackage: %s", path)
	}
	if contents.DataType != "features" {
		return nil, With(ErrFormat, "图层 %s 不是矢量图层: data_type=%s", contents.Table, contents.DataType)
	}

	var geomCol gpkgGeometryColumns
	err = gdb.Where("table_name = ?", contents.Table).First(&geomCol).Error
	if err != nil {
		return nil, classifySQLiteError(err, "图层 %s 缺少几何列定义", contents.Table)
	}

	layer := &VectorLayer{
		Name:           contents.Table,
		GeomType:       ParseGeomType(geomCol.GeometryTypeName),
		GeometryColumn: geomCol.ColumnName,
	}

	if geomCol.SrsID > 0 {
		var srsRow gpkgSpatialRefSys
		err = gdb.Where("srs_id = ?", geomCol.SrsID).First(&srsRow).Error
		if err != nil {
			return nil, classifySQLiteError(err, "图层 %s 的坐标系 %d 未定义", contents.Table, geomCol.SrsID)
		}
		layer.SRS = spatialReferenceFromRow(srsRow)
	}

	db, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("获取数据库连接失败: %w", err)
	}
	if err := readFieldDefinitions(ctx, db, layer); err != nil {
		return nil, err
	}
	if err := readFeatures(ctx, db, layer); err != nil {
		return nil, err
	}
	return layer, nil
}

// spatialReferenceFromRow 将gpkg_spatial_ref_sys记录转换为空间参考
func spatialReferenceFromRow(row gpkgSpatialRefSys) *SpatialReference {
	var srs *SpatialReference
	if strings.EqualFold(row.Organization, "EPSG") {
		srs = NewSpatialReferenceFromEPSG(row.OrganizationCoordsysID)
	} else {
		srs = &SpatialReference{Organization: row.Organization, Type: SRSTypeProjected}
	}
	srs.Name = row.SrsName
	srs.WKT = ""
	if row.Definition != UndefinedDefinition {
		srs.WKT = row.Definition
	}
	if row.Description != nil {
		srs.Description = *row.Description
	}
	return srs
}

// readFieldDefinitions 通过 PRAGMA table_info 读取字段结构
func readFieldDefinitions(ctx context.Context, db *sql.DB, layer *VectorLayer) error {
	rows, err := db.QueryContext(ctx, "PRAGMA table_info("+quoteIdent(layer.Name)+")")
	if err != nil {
		return classifySQLiteError(err, "读取图层 %s 字段失败", layer.Name)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid      int
			name     string
			declType string
			notNull  int
			dflt     sql.NullString
			pk       int
		)
		if err := rows.Scan(&cid, &name, &declType, &notNull, &dflt, &pk); err != nil {
			return Wrap(ErrFormat, err, "解析图层 %s 字段失败", layer.Name)
		}
		if strings.EqualFold(name, layer.GeometryColumn) {
			continue
		}
		if pk == 1 && strings.EqualFold(declType, "INTEGER") {
			layer.FIDColumn = name
			continue
		}
		fieldType, width := mapGeoPackageTypeToField(declType)
		layer.Fields = append(layer.Fields, FieldDefn{Name: name, Type: fieldType, Width: width})
	}
	if err := rows.Err(); err != nil {
		return classifySQLiteError(err, "读取图层 %s 字段失败", layer.Name)
	}
	if layer.FIDColumn == "" && len(layer.Fields) == 0 {
		return With(ErrNotFound, "图层表不存在: %s", layer.Name)
	}
	return nil
}

// readFeatures 读取全部要素
func readFeatures(ctx context.Context, db *sql.DB, layer *VectorLayer) error {
	fidExpr := "rowid"
	if layer.FIDColumn != "" {
		fidExpr = quoteIdent(layer.FIDColumn)
	}
	columns := []string{fidExpr, quoteIdent(layer.GeometryColumn)}
	for _, f := range layer.Fields {
		columns = append(columns, quoteIdent(f.Name))
	}
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s",
		strings.Join(columns, ", "), quoteIdent(layer.Name), fidExpr)

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return classifySQLiteError(err, "读取图层 %s 要素失败", layer.Name)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			fid  int64
			blob []byte
		)
		values := make([]interface{}, len(layer.Fields))
		dest := make([]interface{}, 0, len(layer.Fields)+2)
		dest = append(dest, &fid, &blob)
		for i := range values {
			dest = append(dest, &values[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return Wrap(ErrFormat, err, "解析图层 %s 要素失败", layer.Name)
		}

		feature := &Feature{FID: fid, Values: values}
		if blob != nil {
			geom, _, err := decodeGeoPackageGeometry(blob)
			if err != nil {
				return Wrap(ErrFormat, err, "图层 %s 要素 %d 几何解析失败", layer.Name, fid)
			}
			feature.Geometry = geom
		}
		for i, f := range layer.Fields {
			// TEXT列中的数据以[]byte返回时统一转为字符串
			if b, ok := values[i].([]byte); ok && f.Type == FieldTypeString {
				values[i] = string(b)
			}
		}
		layer.Features = append(layer.Features, feature)
	}
	if err := rows.Err(); err != nil {
		return classifySQLiteError(err, "读取图层 %s 要素失败", layer.Name)
	}
	return nil
}

// srsIDFor 返回图层坐标系对应的srs_id，未设置坐标系时为-1
func srsIDFor(srs *SpatialReference) int {
	switch {
	case srs == nil:
		return -1
	case srs.EPSG > 0:
		return srs.EPSG
	default:
		return gpkgCustomSRSID
	}
}

// WriteGeoPackageLayer 将图层写入新的GeoPackage文件，已存在的文件会被覆盖
func WriteGeoPackageLayer(ctx context.Context, path string, layer *VectorLayer) error {
	if layer == nil {
		return fmt.Errorf("图层为空")
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("无法删除已存在的文件 %s: %w", path, err)
	}
	return writeGeoPackageLayer(ctx, path, layer)
}

// AppendGeoPackageLayer 将图层追加到GeoPackage文件，文件不存在时创建，同名图层被替换
func AppendGeoPackageLayer(ctx context.Context, path string, layer *VectorLayer) error {
	if layer == nil {
		return fmt.Errorf("图层为空")
	}
	return writeGeoPackageLayer(ctx, path, layer)
}

func writeGeoPackageLayer(ctx context.Context, path string, layer *VectorLayer) error {
	gdb, err := openGeoPackage(path, false)
	if err != nil {
		return err
	}
	defer closeGeoPackage(gdb)
	gdb = gdb.WithContext(ctx)

	if err := createGeoPackageTables(gdb); err != nil {
		return classifySQLiteError(err, "创建GeoPackage表结构失败: %s", path)
	}
	if err := dropFeatureTable(gdb, layer.Name); err != nil {
		return fmt.Errorf("删除已存在的图层 %s 失败: %w", layer.Name, err)
	}
	srsID, err := writeSpatialRef(gdb, layer.SRS)
	if err != nil {
		return fmt.Errorf("写入坐标系失败: %w", err)
	}
	if err := createFeatureTable(gdb, layer, srsID); err != nil {
		return fmt.Errorf("创建图层 %s 失败: %w", layer.Name, err)
	}

	db, err := gdb.DB()
	if err != nil {
		return fmt.Errorf("获取数据库连接失败: %w", err)
	}
	if err := insertFeatures(ctx, db, layer, srsID); err != nil {
		return fmt.Errorf("写入图层 %s 要素失败: %w", layer.Name, err)
	}
	return nil
}

// createGeoPackageTables 设置GeoPackage文件标识并创建核心表
func createGeoPackageTables(gdb *gorm.DB) error {
	pragmas := []string{
		fmt.Sprintf("PRAGMA application_id = %d", gpkgApplicationID),
		fmt.Sprintf("PRAGMA user_version = %d", gpkgUserVersion),
	}
	for _, stmt := range append(pragmas, gpkgSchemas...) {
		if err := gdb.Exec(stmt).Error; err != nil {
			return err
		}
	}
	for _, row := range gpkgRequiredSRS {
		if err := insertSpatialRefRow(gdb, row); err != nil {
			return err
		}
	}
	return nil
}

func insertSpatialRefRow(gdb *gorm.DB, row gpkgSpatialRefSys) error {
	return gdb.Exec(`INSERT OR IGNORE INTO gpkg_spatial_ref_sys
		(srs_name, srs_id, organization, organization_coordsys_id, definition, description)
		VALUES (?, ?, ?, ?, ?, ?)`,
		row.SrsName, row.SrsID, row.Organization, row.OrganizationCoordsysID, row.Definition, row.Description).Error
}

// writeSpatialRef 写入图层坐标系，返回srs_id
func writeSpatialRef(gdb *gorm.DB, srs *SpatialReference) (int, error) {
	srsID := srsIDFor(srs)
	if srs == nil {
		return srsID, nil
	}
	org, orgID := "EPSG", srs.EPSG
	if srs.EPSG <= 0 {
		org, orgID = "NONE", gpkgCustomSRSID
		if srs.Organization != "" {
			org = srs.Organization
		}
	}
	name := srs.Name
	if name == "" {
		name = fmt.Sprintf("EPSG:%d", srs.EPSG)
	}
	var description *string
	if srs.Description != "" {
		description = &srs.Description
	}
	// 预置的4326记录需要被图层自身的定义替换时先删除
	if err := gdb.Where("srs_id = ?", srsID).Delete(&gpkgSpatialRefSys{}).Error; err != nil {
		return 0, err
	}
	row := gpkgSpatialRefSys{
		SrsName:                name,
		SrsID:                  srsID,
		Organization:           org,
		OrganizationCoordsysID: orgID,
		Definition:             srs.Definition(),
		Description:            description,
	}
	return srsID, insertSpatialRefRow(gdb, row)
}

// dropFeatureTable 删除同名要素表及其登记信息
func dropFeatureTable(gdb *gorm.DB, name string) error {
	var existing []gpkgContents
	if err := gdb.Where("lower(table_name) = lower(?)", name).Find(&existing).Error; err != nil {
		return err
	}
	for _, c := range existing {
		if err := gdb.Where("table_name = ?", c.Table).Delete(&gpkgGeometryColumns{}).Error; err != nil {
			return err
		}
		if err := gdb.Where("table_name = ?", c.Table).Delete(&gpkgContents{}).Error; err != nil {
			return err
		}
		if err := gdb.Exec("DROP TABLE IF EXISTS " + quoteIdent(c.Table)).Error; err != nil {
			return err
		}
	}
	return nil
}

// createFeatureTable 创建要素表并登记到 gpkg_contents 和 gpkg_geometry_columns
func createFeatureTable(gdb *gorm.DB, layer *VectorLayer, srsID int) error {
	fidColumn := layer.FIDColumn
	if fidColumn == "" {
		fidColumn = DefaultFIDColumn
	}
	geomColumn := layer.GeometryColumn
	if geomColumn == "" {
		geomColumn = DefaultGeometryColumn
	}

	columns := []string{
		quoteIdent(fidColumn) + " INTEGER PRIMARY KEY AUTOINCREMENT NOT NULL",
		quoteIdent(geomColumn) + " " + layer.GeomType.String(),
	}
	for _, f := range layer.Fields {
		columns = append(columns, quoteIdent(f.Name)+" "+mapFieldTypeToGeoPackage(f))
	}
	ddl := fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(layer.Name), strings.Join(columns, ", "))
	if err := gdb.Exec(ddl).Error; err != nil {
		return err
	}

	var minX, minY, maxX, maxY *float64
	if b, ok := layer.Bound(); ok {
		minX, minY, maxX, maxY = &b.Min[0], &b.Min[1], &b.Max[0], &b.Max[1]
	}
	err := gdb.Exec(`INSERT INTO gpkg_contents
		(table_name, data_type, identifier, description, min_x, min_y, max_x, max_y, srs_id)
		VALUES (?, 'features', ?, '', ?, ?, ?, ?, ?)`,
		layer.Name, layer.Name, minX, minY, maxX, maxY, srsID).Error
	if err != nil {
		return err
	}

	return gdb.Clauses(clause.OnConflict{DoNothing: true}).Create(&gpkgGeometryColumns{
		Table:            layer.Name,
		ColumnName:       geomColumn,
		GeometryTypeName: layer.GeomType.String(),
		SrsID:            srsID,
	}).Error
}

// insertFeatures 在一个事务中写入全部要素，FID为0的要素由数据库分配
func insertFeatures(ctx context.Context, db *sql.DB, layer *VectorLayer, srsID int) error {
	fidColumn := layer.FIDColumn
	if fidColumn == "" {
		fidColumn = DefaultFIDColumn
	}
	geomColumn := layer.GeometryColumn
	if geomColumn == "" {
		geomColumn = DefaultGeometryColumn
	}

	columns := []string{quoteIdent(fidColumn), quoteIdent(geomColumn)}
	placeholders := []string{"?", "?"}
	for _, f := range layer.Fields {
		columns = append(columns, quoteIdent(f.Name))
		placeholders = append(placeholders, "?")
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(layer.Name), strings.Join(columns, ", "), strings.Join(placeholders, ", "))

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, f := range layer.Features {
		if len(f.Values) != len(layer.Fields) {
			tx.Rollback()
			return fmt.Errorf("要素 %d 属性数量与字段数量不一致: %d != %d", f.FID, len(f.Values), len(layer.Fields))
		}
		args := make([]interface{}, 0, len(f.Values)+2)
		if f.FID > 0 {
			args = append(args, f.FID)
		} else {
			args = append(args, nil)
		}
		blob, err := encodeGeoPackageGeometry(f.Geometry, int32(srsID))
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("要素 %d 几何编码失败: %w", f.FID, err)
		}
		if blob == nil {
			args = append(args, nil)
		} else {
			args = append(args, blob)
		}
		for i, v := range f.Values {
			args = append(args, toStorageValue(layer.Fields[i], v))
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}
