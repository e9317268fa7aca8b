// Package deploy 提供部署类型的共享定义。
//
// 此包定义了 Type 类型及其方法，供 xctx 包使用，作为请求级 context 传播的部署类型定义（类型别名 deploy.Type）。
package deploy
