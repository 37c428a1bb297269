package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"
)

// ErrorsTestSuite 错误包测试套件
type ErrorsTestSuite struct {
	suite.Suite
}

// 测试创建新错误
func (suite *ErrorsTestSuite) TestNew() {
	// 测试基本错误创建
	err := New(ErrInvalidParam)
	suite.NotNil(err)
	suite.Equal(ErrInvalidParam, err.Code)
	suite.Equal("无效的参数", err.Message)
	suite.Empty(err.Details)

	// 测试带详情的错误
	err = New(ErrClientGone, "进程退出")
	suite.NotNil(err)
	suite.Equal(ErrClientGone, err.Code)
	suite.Equal("游戏客户端进程已消失", err.Message)
	suite.Equal("进程退出", err.Details)

	// 测试多个详情
	err = New(ErrDatabaseConnect, "连接失败", "驱动: sqlite")
	suite.Equal("连接失败; 驱动: sqlite", err.Details)
}

// 测试格式化错误创建
func (suite *ErrorsTestSuite) TestNewf() {
	err := Newf(ErrGameNotTracked, "对局 %s 不存在", "g-42")
	suite.NotNil(err)
	suite.Equal(ErrGameNotTracked, err.Code)
	suite.Equal("对局 g-42 不存在", err.Details)
}

// 测试错误包装
func (suite *ErrorsTestSuite) TestWrap() {
	// 包装标准错误
	originalErr := errors.New("原始错误")
	wrappedErr := Wrap(originalErr, ErrDatabaseQuery)
	suite.NotNil(wrappedErr)
	suite.Equal(ErrDatabaseQuery, wrappedErr.Code)
	suite.Equal("原始错误", wrappedErr.Details)
	suite.Equal(originalErr, wrappedErr.Cause)

	// 包装nil错误
	nilErr := Wrap(nil, ErrUnknown)
	suite.Nil(nilErr)

	// 包装已有的AppError保留原始错误码
	appErr := New(ErrNotFound, "资源不存在")
	wrappedAppErr := Wrap(appErr, ErrInvalidParam, "额外信息")
	suite.Equal(ErrNotFound, wrappedAppErr.Code)
	suite.Equal("额外信息; 资源不存在", wrappedAppErr.Details)
}

// 测试错误码判断
func (suite *ErrorsTestSuite) TestIs() {
	err := New(ErrClientGone)
	suite.True(Is(err, ErrClientGone))
	suite.False(Is(err, ErrClientNotReady))
	suite.False(Is(nil, ErrClientGone))
	suite.False(Is(errors.New("普通错误"), ErrClientGone))
}

// 测试瞬时故障判断
func (suite *ErrorsTestSuite) TestIsTransient() {
	suite.True(IsTransient(New(ErrClientGone)))
	suite.True(IsTransient(New(ErrClientNotReady)))
	suite.False(IsTransient(New(ErrDataIntegrity)))
	suite.False(IsTransient(nil))
}

// 测试Unwrap支持标准库errors.Is
func (suite *ErrorsTestSuite) TestUnwrap() {
	originalErr := errors.New("底层错误")
	wrapped := Wrap(originalErr, ErrDatabaseInsert)
	suite.True(errors.Is(wrapped, originalErr))
}

// 测试HTTP状态码映射
func (suite *ErrorsTestSuite) TestHTTPStatus() {
	suite.Equal(400, New(ErrInvalidParam).HTTPStatus())
	suite.Equal(404, New(ErrNotFound).HTTPStatus())
	suite.Equal(503, New(ErrClientGone).HTTPStatus())
	suite.Equal(503, New(ErrClientNotReady).HTTPStatus())
	suite.Equal(500, New(ErrDataIntegrity).HTTPStatus())
	suite.Equal(500, New(ErrDatabase).HTTPStatus())
}

// 测试通用数据库错误码
func (suite *ErrorsTestSuite) TestDatabaseCode() {
	err := New(ErrDatabase, "关闭失败")
	suite.Equal(ErrDatabase, err.Code)
	suite.Equal("数据库操作失败", err.Message)
}

func TestErrorsTestSuite(t *testing.T) {
	suite.Run(t, new(ErrorsTestSuite))
}
