package approval

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

type WorkflowPo struct {
	ID          int64  `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Code        string `gorm:"column:code;index" json:"code"`
	Name        string `gorm:"column:name" json:"name"`
	Description string `gorm:"column:description" json:"description"`
	Version     int64  `gorm:"column:version" json:"version"`
	IsActive    bool   `gorm:"column:is_active" json:"is_active"`
	CreatedBy   int64  `gorm:"column:created_by" json:"created_by"`
	CreatedAt   int64  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt   int64  `gorm:"column:updated_at" json:"updated_at"`
}

func (WorkflowPo) TableName() string {
	return "approval_workflow"
}

type WorkflowStepPo struct {
	ID                 int64            `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	WorkflowID         int64            `gorm:"column:workflow_id;index" json:"workflow_id"`
	StepKey            string           `gorm:"column:step_key" json:"step_key"`
	StepOrder          int64            `gorm:"column:step_order" json:"step_order"`
	Name               string           `gorm:"column:name" json:"name"`
	ApproverStrategy   ApproverStrategy `gorm:"column:approver_strategy" json:"approver_strategy"`
	ApproverValue      string           `gorm:"column:approver_value" json:"approver_value"`
	ApprovalMode       ApprovalMode     `gorm:"column:approval_mode" json:"approval_mode"`
	CanSendBack        bool             `gorm:"column:can_send_back" json:"can_send_back"`
	RejectTargetType   RejectTargetType `gorm:"column:reject_target_type" json:"reject_target_type"`
	RejectTargetStepID *int64           `gorm:"column:reject_target_step_id" json:"reject_target_step_id"`
	IsTerminal         bool             `gorm:"column:is_terminal" json:"is_terminal"`
	CreatedAt          int64            `gorm:"column:created_at" json:"created_at"`
}

func (WorkflowStepPo) TableName() string {
	return "approval_workflow_step"
}

type InstancePo struct {
	ID            int64          `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	WorkflowID    int64          `gorm:"column:workflow_id;index" json:"workflow_id"`
	RefType       string         `gorm:"column:ref_type" json:"ref_type"`
	RefID         string         `gorm:"column:ref_id" json:"ref_id"`
	Status        InstanceStatus `gorm:"column:status" json:"status"`
	CurrentStepID *int64         `gorm:"column:current_step_id" json:"current_step_id"`
	SubmitterID   int64          `gorm:"column:submitter_id" json:"submitter_id"`
	CreatedAt     int64          `gorm:"column:created_at" json:"created_at"`
	UpdatedAt     int64          `gorm:"column:updated_at" json:"updated_at"`
}

func (InstancePo) TableName() string {
	return "approval_instance"
}

type StepInstancePo struct {
	ID         int64              `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	InstanceID int64              `gorm:"column:instance_id;index" json:"instance_id"`
	StepID     int64              `gorm:"column:step_id" json:"step_id"`
	Status     StepInstanceStatus `gorm:"column:status" json:"status"`
	AssignedTo []byte             `gorm:"column:assigned_to" json:"assigned_to"` // 审批人快照,创建时解析一次后冻结,JSON数组
	ActedBy    *int64             `gorm:"column:acted_by" json:"acted_by"`
	ActedAt    *int64             `gorm:"column:acted_at" json:"acted_at"`
	Comment    string             `gorm:"column:comment" json:"comment"`
	CreatedAt  int64              `gorm:"column:created_at" json:"created_at"`
	UpdatedAt  int64              `gorm:"column:updated_at" json:"updated_at"`
}

func (StepInstancePo) TableName() string {
	return "approval_step_instance"
}

// DecisionPo all模式的部分审批台账,一个审批人对一个步骤实例只会有一条
type DecisionPo struct {
	ID             int64        `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	StepInstanceID int64        `gorm:"column:step_instance_id;index" json:"step_instance_id"`
	UserID         int64        `gorm:"column:user_id" json:"user_id"`
	Decision       DecisionType `gorm:"column:decision" json:"decision"`
	CreatedAt      int64        `gorm:"column:created_at" json:"created_at"`
}

func (DecisionPo) TableName() string {
	return "approval_decision"
}

// ActionLogPo 操作流水,只追加,不更新不删除
type ActionLogPo struct {
	ID         int64      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	InstanceID int64      `gorm:"column:instance_id;index" json:"instance_id"`
	Action     ActionType `gorm:"column:action" json:"action"`
	FromStepID *int64     `gorm:"column:from_step_id" json:"from_step_id"`
	ToStepID   *int64     `gorm:"column:to_step_id" json:"to_step_id"` // send_back流水记录退回目标步骤
	ActorID    int64      `gorm:"column:actor_id" json:"actor_id"`
	Comment    string     `gorm:"column:comment" json:"comment"`
	CreatedAt  int64      `gorm:"column:created_at" json:"created_at"`
}

func (ActionLogPo) TableName() string {
	return "approval_action_log"
}

type UserRolePo struct {
	ID       int64  `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	UserID   int64  `gorm:"column:user_id;index" json:"user_id"`
	RoleCode string `gorm:"column:role_code;index" json:"role_code"`
}

func (UserRolePo) TableName() string {
	return "approval_user_role"
}

func MarshalAssignees(userIDs []int64) []byte {
	b, err := json.Marshal(userIDs)
	if err != nil {
		// int64数组不会marshal失败
		return []byte("[]")
	}
	return b
}

func UnmarshalAssignees(b []byte) []int64 {
	ret := make([]int64, 0)
	if len(b) == 0 {
		return ret
	}
	_ = json.Unmarshal(b, &ret)
	return ret
}

type Pager struct {
	IsNoLimit *bool `json:"is_no_limit"`
	Page      int64 `json:"page"`
	Size      int64 `json:"size"`
}

type QueryWorkflowParams struct {
	WorkflowID         *int64  `json:"workflow_id"`
	Code               *string `json:"code"`
	IsActive           *bool   `json:"is_active"`
	OrderbyVersionDesc *bool   `json:"orderby_version_desc"`
	Page               *Pager  `json:"page"`
}

type QueryWorkflowStepParams struct {
	StepID              *int64 `json:"step_id"`
	WorkflowID          *int64 `json:"workflow_id"`
	OrderbyStepOrderAsc *bool  `json:"orderby_step_order_asc"`
	Page                *Pager `json:"page"`
}

type QueryInstanceParams struct {
	InstanceID *int64   `json:"instance_id"`
	RefType    *string  `json:"ref_type"`
	RefID      *string  `json:"ref_id"`
	StatusIn   []string `json:"status_in"`
	Page       *Pager   `json:"page"`
}

type QueryStepInstanceParams struct {
	StepInstanceID *int64   `json:"step_instance_id"`
	InstanceID     *int64   `json:"instance_id"`
	StatusIn       []string `json:"status_in"`
	OrderbyIDAsc   *bool    `json:"orderby_id_asc"`
	Page           *Pager   `json:"page"`
}

type QueryDecisionParams struct {
	StepInstanceID *int64 `json:"step_instance_id"`
	Page           *Pager `json:"page"`
}

type QueryActionLogParams struct {
	InstanceID   *int64 `json:"instance_id"`
	OrderbyIDAsc *bool  `json:"orderby_id_asc"`
	Page         *Pager `json:"page"`
}

type UpdateWorkflowParams struct {
	Where    *UpdateWorkflowWhere `json:"where" validate:"required"`
	Fields   *UpdateWorkflowField `json:"field" validate:"required"`
	LimitMax int                  `json:"limit_max" validate:"required"`
}

type UpdateWorkflowWhere struct {
	IDIn   []int64  `json:"id_in"`
	CodeIn []string `json:"code_in"`
}

type UpdateWorkflowField struct {
	IsActive *bool `json:"is_active"`
}

type UpdateWorkflowStepParams struct {
	Where    *UpdateWorkflowStepWhere `json:"where" validate:"required"`
	Fields   *UpdateWorkflowStepField `json:"field" validate:"required"`
	LimitMax int                      `json:"limit_max" validate:"required"`
}

type UpdateWorkflowStepWhere struct {
	IDIn []int64 `json:"id_in"`
}

type UpdateWorkflowStepField struct {
	RejectTargetStepID *int64 `json:"reject_target_step_id"`
}

type UpdateInstanceParams struct {
	Where    *UpdateInstanceWhere `json:"where" validate:"required"`
	Fields   *UpdateInstanceField `json:"field" validate:"required"`
	LimitMax int                  `json:"limit_max" validate:"required"`
}

type UpdateInstanceWhere struct {
	IDIn     []int64  `json:"id_in"`
	StatusIn []string `json:"status_in"`
}

type UpdateInstanceField struct {
	Status        *string `json:"status"`
	CurrentStepID *int64  `json:"current_step_id"`
	// 终止时current_step_id要置空,指针字段表达不了NULL,用这个开关
	IsClearCurrentStep bool `json:"is_clear_current_step"`
}

type UpdateStepInstanceParams struct {
	Where    *UpdateStepInstanceWhere `json:"where" validate:"required"`
	Fields   *UpdateStepInstanceField `json:"field" validate:"required"`
	LimitMax int                      `json:"limit_max" validate:"required"`
}

type UpdateStepInstanceWhere struct {
	IDIn     []int64  `json:"id_in"`
	StatusIn []string `json:"status_in"`
}

type UpdateStepInstanceField struct {
	Status  *string `json:"status"`
	ActedBy *int64  `json:"acted_by"`
	ActedAt *int64  `json:"acted_at"`
	Comment *string `json:"comment"`
}

type approvalRepo struct {
	db *gorm.DB
}

func NewApprovalRepo(db *gorm.DB) ApprovalRepo {
	return &approvalRepo{
		db: db,
	}
}

func (r *approvalRepo) CreateWorkflow(ctx context.Context, workflow *WorkflowPo) (*WorkflowPo, error) {
	if workflow == nil {
		return nil, fmt.Errorf("nil WorkflowPo")
	}
	workflow.CreatedAt = time.Now().Unix()
	workflow.UpdatedAt = time.Now().Unix()
	if err := r.GetDBWithContext(ctx).Create(workflow).Error; err != nil {
		return nil, errors.WithMessage(err, "CreateWorkflow failed")
	}
	return workflow, nil
}

func (r *approvalRepo) CreateWorkflowStep(ctx context.Context, step *WorkflowStepPo) (*WorkflowStepPo, error) {
	if step == nil {
		return nil, errors.New("nil WorkflowStepPo")
	}
	step.CreatedAt = time.Now().Unix()
	if err := r.GetDBWithContext(ctx).Create(step).Error; err != nil {
		return nil, errors.WithMessage(err, "CreateWorkflowStep failed")
	}
	return step, nil
}

func applyPager(db *gorm.DB, page *Pager) (*gorm.DB, error) {
	if page == nil {
		return nil, errors.New("page is nil")
	}
	if page.IsNoLimit != nil && *page.IsNoLimit {
		// 显式指定了不分页
		return db, nil
	}
	if page.Page == 0 {
		page.Page = 1
	}
	if page.Size == 0 {
		page.Size = 10
	}
	return db.Offset(int(page.Page-1) * int(page.Size)).Limit(int(page.Size)), nil
}

func buildQueryWorkflowParams(db *gorm.DB, param *QueryWorkflowParams) (*gorm.DB, error) {
	if param == nil {
		return nil, errors.New("nil QueryWorkflowParams")
	}
	if param.WorkflowID != nil {
		db = db.Where("id = ?", param.WorkflowID)
	}
	if param.Code != nil {
		db = db.Where("code = ?", param.Code)
	}
	if param.IsActive != nil {
		db = db.Where("is_active = ?", param.IsActive)
	}
	if param.OrderbyVersionDesc != nil {
		if *param.OrderbyVersionDesc {
			db = db.Order("version desc")
		} else {
			db = db.Order("version asc")
		}
	}
	return applyPager(db, param.Page)
}

func (r *approvalRepo) QueryWorkflow(ctx context.Context, param *QueryWorkflowParams) ([]*WorkflowPo, error) {
	if param == nil {
		return nil, fmt.Errorf("nil QueryWorkflowParams")
	}
	db := r.GetDBWithContext(ctx).Model(&WorkflowPo{})
	db, err := buildQueryWorkflowParams(db, param)
	if err != nil {
		return nil, errors.WithMessage(err, "buildQueryWorkflowParams failed")
	}
	pos := make([]*WorkflowPo, 0)
	if err := db.Find(&pos).Error; err != nil {
		return nil, errors.WithMessage(err, "QueryWorkflow failed")
	}
	return pos, nil
}

func buildQueryWorkflowStepParams(db *gorm.DB, param *QueryWorkflowStepParams) (*gorm.DB, error) {
	if param == nil {
		return nil, errors.New("nil QueryWorkflowStepParams")
	}
	if param.StepID != nil {
		db = db.Where("id = ?", param.StepID)
	}
	if param.WorkflowID != nil {
		db = db.Where("workflow_id = ?", param.WorkflowID)
	}
	if param.OrderbyStepOrderAsc != nil {
		if *param.OrderbyStepOrderAsc {
			db = db.Order("step_order asc")
		} else {
			db = db.Order("step_order desc")
		}
	}
	return applyPager(db, param.Page)
}

func (r *approvalRepo) QueryWorkflowStep(ctx context.Context, param *QueryWorkflowStepParams) ([]*WorkflowStepPo, error) {
	if param == nil {
		return nil, fmt.Errorf("nil QueryWorkflowStepParams")
	}
	db := r.GetDBWithContext(ctx).Model(&WorkflowStepPo{})
	db, err := buildQueryWorkflowStepParams(db, param)
	if err != nil {
		return nil, errors.WithMessage(err, "buildQueryWorkflowStepParams failed")
	}
	pos := make([]*WorkflowStepPo, 0)
	if err := db.Find(&pos).Error; err != nil {
		return nil, errors.WithMessage(err, "QueryWorkflowStep failed")
	}
	return pos, nil
}

func (r *approvalRepo) UpdateWorkflow(ctx context.Context, param *UpdateWorkflowParams) error {
	if param == nil {
		return fmt.Errorf("nil UpdateWorkflowParams")
	}
	if param.Where == nil || param.Fields == nil {
		return errors.New("where or fields is nil")
	}
	db := r.GetDBWithContext(ctx).Model(&WorkflowPo{})
	isHasWhere := false
	if len(param.Where.IDIn) > 0 {
		isHasWhere = true
		db = db.Where("id IN ?", param.Where.IDIn)
	}
	if len(param.Where.CodeIn) > 0 {
		isHasWhere = true
		db = db.Where("code IN ?", param.Where.CodeIn)
	}
	if !isHasWhere {
		return errors.New("update workflow need where condition, please check")
	}
	updateFields := make(map[string]any)
	if param.Fields.IsActive != nil {
		updateFields["is_active"] = *param.Fields.IsActive
	}
	if len(updateFields) == 0 {
		return errors.New("no fields to update")
	}
	updateFields["updated_at"] = time.Now().Unix()
	if err := db.Updates(updateFields).Limit(param.LimitMax).Error; err != nil {
		return errors.WithMessage(err, "UpdateWorkflow failed")
	}
	return nil
}

func (r *approvalRepo) UpdateWorkflowStep(ctx context.Context, param *UpdateWorkflowStepParams) error {
	if param == nil {
		return fmt.Errorf("nil UpdateWorkflowStepParams")
	}
	if param.Where == nil || param.Fields == nil {
		return errors.New("where or fields is nil")
	}
	if len(param.Where.IDIn) == 0 {
		return errors.New("update workflow step need where condition, please check")
	}
	db := r.GetDBWithContext(ctx).Model(&WorkflowStepPo{}).Where("id IN ?", param.Where.IDIn)
	updateFields := make(map[string]any)
	if param.Fields.RejectTargetStepID != nil {
		updateFields["reject_target_step_id"] = *param.Fields.RejectTargetStepID
	}
	if len(updateFields) == 0 {
		return errors.New("no fields to update")
	}
	if err := db.Updates(updateFields).Limit(param.LimitMax).Error; err != nil {
		return errors.WithMessage(err, "UpdateWorkflowStep failed")
	}
	return nil
}

func (r *approvalRepo) CreateInstance(ctx context.Context, instance *InstancePo) (*InstancePo, error) {
	if instance == nil {
		return nil, fmt.Errorf("nil InstancePo")
	}
	instance.CreatedAt = time.Now().Unix()
	instance.UpdatedAt = time.Now().Unix()
	if err := r.GetDBWithContext(ctx).Create(instance).Error; err != nil {
		return nil, errors.WithMessage(err, "CreateInstance failed")
	}
	return instance, nil
}

func buildQueryInstanceParams(db *gorm.DB, param *QueryInstanceParams) (*gorm.DB, error) {
	if param == nil {
		return nil, errors.New("nil QueryInstanceParams")
	}
	if param.InstanceID != nil {
		db = db.Where("id = ?", param.InstanceID)
	}
	if param.RefType != nil {
		db = db.Where("ref_type = ?", param.RefType)
	}
	if param.RefID != nil {
		db = db.Where("ref_id = ?", param.RefID)
	}
	if len(param.StatusIn) != 0 {
		db = db.Where("status IN ?", param.StatusIn)
	}
	return applyPager(db, param.Page)
}

func (r *approvalRepo) QueryInstance(ctx context.Context, param *QueryInstanceParams) ([]*InstancePo, error) {
	if param == nil {
		return nil, fmt.Errorf("nil QueryInstanceParams")
	}
	db := r.GetDBWithContext(ctx).Model(&InstancePo{})
	db, err := buildQueryInstanceParams(db, param)
	if err != nil {
		return nil, errors.WithMessage(err, "buildQueryInstanceParams failed")
	}
	pos := make([]*InstancePo, 0)
	if err := db.Find(&pos).Error; err != nil {
		return nil, errors.WithMessage(err, "QueryInstance failed")
	}
	return pos, nil
}

func (r *approvalRepo) UpdateInstance(ctx context.Context, param *UpdateInstanceParams) (int64, error) {
	if param == nil {
		return 0, fmt.Errorf("nil UpdateInstanceParams")
	}
	if param.Where == nil || param.Fields == nil {
		return 0, errors.New("where or fields is nil")
	}
	if len(param.Where.IDIn) == 0 {
		return 0, errors.New("update instance need where condition, please check")
	}
	db := r.GetDBWithContext(ctx).Model(&InstancePo{}).Where("id IN ?", param.Where.IDIn)
	if len(param.Where.StatusIn) > 0 {
		db = db.Where("status IN ?", param.Where.StatusIn)
	}
	updateFields := make(map[string]any)
	if param.Fields.Status != nil {
		updateFields["status"] = *param.Fields.Status
	}
	if param.Fields.IsClearCurrentStep {
		updateFields["current_step_id"] = nil
	} else if param.Fields.CurrentStepID != nil {
		updateFields["current_step_id"] = *param.Fields.CurrentStepID
	}
	if len(updateFields) == 0 {
		return 0, errors.New("no fields to update")
	}
	updateFields["updated_at"] = time.Now().Unix()
	tx := db.Updates(updateFields)
	if tx.Error != nil {
		return 0, errors.WithMessage(tx.Error, "UpdateInstance failed")
	}
	return tx.RowsAffected, nil
}

func (r *approvalRepo) CreateStepInstance(ctx context.Context, stepInstance *StepInstancePo) (*StepInstancePo, error) {
	if stepInstance == nil {
		return nil, fmt.Errorf("nil StepInstancePo")
	}
	stepInstance.CreatedAt = time.Now().Unix()
	stepInstance.UpdatedAt = time.Now().Unix()
	if err := r.GetDBWithContext(ctx).Create(stepInstance).Error; err != nil {
		return nil, errors.WithMessage(err, "CreateStepInstance failed")
	}
	return stepInstance, nil
}

func buildQueryStepInstanceParams(db *gorm.DB, param *QueryStepInstanceParams) (*gorm.DB, error) {
	if param == nil {
		return nil, errors.New("nil QueryStepInstanceParams")
	}
	if param.StepInstanceID != nil {
		db = db.Where("id = ?", param.StepInstanceID)
	}
	if param.InstanceID != nil {
		db = db.Where("instance_id = ?", param.InstanceID)
	}
	if len(param.StatusIn) != 0 {
		db = db.Where("status IN ?", param.StatusIn)
	}
	if param.OrderbyIDAsc != nil {
		if *param.OrderbyIDAsc {
			db = db.Order("id asc")
		} else {
			db = db.Order("id desc")
		}
	}
	return applyPager(db, param.Page)
}

func (r *approvalRepo) QueryStepInstance(ctx context.Context, param *QueryStepInstanceParams) ([]*StepInstancePo, error) {
	if param == nil {
		return nil, fmt.Errorf("nil QueryStepInstanceParams")
	}
	db := r.GetDBWithContext(ctx).Model(&StepInstancePo{})
	db, err := buildQueryStepInstanceParams(db, param)
	if err != nil {
		return nil, errors.WithMessage(err, "buildQueryStepInstanceParams failed")
	}
	pos := make([]*StepInstancePo, 0)
	if err := db.Find(&pos).Error; err != nil {
		return nil, errors.WithMessage(err, "QueryStepInstance failed")
	}
	return pos, nil
}

func (r *approvalRepo) UpdateStepInstance(ctx context.Context, param *UpdateStepInstanceParams) (int64, error) {
	if param == nil {
		return 0, fmt.Errorf("nil UpdateStepInstanceParams")
	}
	if param.Where == nil || param.Fields == nil {
		return 0, errors.New("where or fields is nil")
	}
	if len(param.Where.IDIn) == 0 {
		return 0, errors.New("update step instance need where condition, please check")
	}
	db := r.GetDBWithContext(ctx).Model(&StepInstancePo{}).Where("id IN ?", param.Where.IDIn)
	if len(param.Where.StatusIn) > 0 {
		db = db.Where("status IN ?", param.Where.StatusIn)
	}
	updateFields := make(map[string]any)
	if param.Fields.Status != nil {
		updateFields["status"] = *param.Fields.Status
	}
	if param.Fields.ActedBy != nil {
		updateFields["acted_by"] = *param.Fields.ActedBy
	}
	if param.Fields.ActedAt != nil {
		updateFields["acted_at"] = *param.Fields.ActedAt
	}
	if param.Fields.Comment != nil {
		updateFields["comment"] = *param.Fields.Comment
	}
	if len(updateFields) == 0 {
		return 0, errors.New("no fields to update")
	}
	updateFields["updated_at"] = time.Now().Unix()
	tx := db.Updates(updateFields)
	if tx.Error != nil {
		return 0, errors.WithMessage(tx.Error, "UpdateStepInstance failed")
	}
	return tx.RowsAffected, nil
}

func (r *approvalRepo) CreateDecision(ctx context.Context, decision *DecisionPo) (*DecisionPo, error) {
	if decision == nil {
		return nil, fmt.Errorf("nil DecisionPo")
	}
	decision.CreatedAt = time.Now().Unix()
	if err := r.GetDBWithContext(ctx).Create(decision).Error; err != nil {
		return nil, errors.WithMessage(err, "CreateDecision failed")
	}
	return decision, nil
}

func (r *approvalRepo) QueryDecision(ctx context.Context, param *QueryDecisionParams) ([]*DecisionPo, error) {
	if param == nil {
		return nil, fmt.Errorf("nil QueryDecisionParams")
	}
	db := r.GetDBWithContext(ctx).Model(&DecisionPo{})
	if param.StepInstanceID != nil {
		db = db.Where("step_instance_id = ?", param.StepInstanceID)
	}
	db, err := applyPager(db, param.Page)
	if err != nil {
		return nil, errors.WithMessage(err, "applyPager failed")
	}
	pos := make([]*DecisionPo, 0)
	if err := db.Find(&pos).Error; err != nil {
		return nil, errors.WithMessage(err, "QueryDecision failed")
	}
	return pos, nil
}

func (r *approvalRepo) CreateActionLog(ctx context.Context, actionLog *ActionLogPo) (*ActionLogPo, error) {
	if actionLog == nil {
		return nil, fmt.Errorf("nil ActionLogPo")
	}
	actionLog.CreatedAt = time.Now().Unix()
	if err := r.GetDBWithContext(ctx).Create(actionLog).Error; err != nil {
		return nil, errors.WithMessage(err, "CreateActionLog failed")
	}
	return actionLog, nil
}

func (r *approvalRepo) QueryActionLog(ctx context.Context, param *QueryActionLogParams) ([]*ActionLogPo, error) {
	if param == nil {
		return nil, fmt.Errorf("nil QueryActionLogParams")
	}
	db := r.GetDBWithContext(ctx).Model(&ActionLogPo{})
	if param.InstanceID != nil {
		db = db.Where("instance_id = ?", param.InstanceID)
	}
	if param.OrderbyIDAsc != nil {
		if *param.OrderbyIDAsc {
			db = db.Order("id asc")
		} else {
			db = db.Order("id desc")
		}
	}
	db, err := applyPager(db, param.Page)
	if err != nil {
		return nil, errors.WithMessage(err, "applyPager failed")
	}
	pos := make([]*ActionLogPo, 0)
	if err := db.Find(&pos).Error; err != nil {
		return nil, errors.WithMessage(err, "QueryActionLog failed")
	}
	return pos, nil
}

type contextKey string

const (
	transactionContextKey contextKey = "transaction"
)

func (r *approvalRepo) GetDBWithContext(ctx context.Context) *gorm.DB {
	tx := ctx.Value(transactionContextKey)
	if tx == nil {
		// 没有事务,直接返回db即可
		return r.db.WithContext(ctx)
	}
	return tx.(*gorm.DB)
}

func (r *approvalRepo) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	ctxTX := ctx.Value(transactionContextKey)
	var err error
	if ctxTX == nil {
		tx := r.db.Begin()
		defer func() {
			if err != nil {
				tx.Rollback()
			} else {
				tx.Commit()
			}
		}()
		newCtx := context.WithValue(ctx, transactionContextKey, tx)
		err = fn(newCtx)
		return err
	}
	return fn(ctx)
}

// GormIdentityProvider 基于approval_user_role表的IdentityProvider实现
// 给示例和测试使用,接入方一般注入自己的用户体系实现
type GormIdentityProvider struct {
	db *gorm.DB
}

func NewGormIdentityProvider(db *gorm.DB) IdentityProvider {
	return &GormIdentityProvider{db: db}
}

func (p *GormIdentityProvider) UsersWithRole(ctx context.Context, roleCode string) ([]int64, error) {
	userIDs := make([]int64, 0)
	err := p.db.WithContext(ctx).Model(&UserRolePo{}).
		Where("role_code = ?", roleCode).
		Order("user_id asc").
		Pluck("user_id", &userIDs).Error
	if err != nil {
		return nil, errors.WithMessagef(err, "UsersWithRole failed, roleCode: %s", roleCode)
	}
	return userIDs, nil
}

func (p *GormIdentityProvider) UserExists(ctx context.Context, userID int64) (bool, error) {
	var count int64
	err := p.db.WithContext(ctx).Model(&UserRolePo{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	if err != nil {
		return false, errors.WithMessagef(err, "UserExists failed, userID: %d", userID)
	}
	return count > 0, nil
}
