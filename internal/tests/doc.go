// Package tests 是 approval-flow 的内部测试模块。
//
// ⚠️ 重要提示：此包位于 internal/ 目录下，受 Go 编译器保护，
// 外部项目无法导入（会得到编译错误）。
//
// 📋 测试内容
//
// 此模块包含以下测试：
//   - approval 包的集成测试（内存 SQLite）
//   - 完整审批场景测试：发起、推进、会签、终审
//   - 驳回与退回场景测试：previous/submitter/specific/runtime
//   - 版本管理测试：克隆、激活唯一性、实例钉住版本
//   - 错误处理测试：重复表态、越权审批、状态守卫
//
// 🚀 运行测试
//
// 在项目根目录：
//
//	go test ./internal/tests/...
package tests
